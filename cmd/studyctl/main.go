// Command studyctl is the operator CLI: schema migrations, account bootstrap
// and one-off summaries.
package main

import "github.com/studycompanion/studycompanion/internal/cli"

func main() {
	cli.Execute()
}

// Package web renders the server-side HTML pages.
package web

import (
	"context"
	"io"

	"github.com/a-h/templ"
)

// Feature is one card on the dashboard.
type Feature struct {
	ID          string
	Title       string
	Description string
	Endpoint    string
	Fields      []Field
}

// Field is one input of a feature form.
type Field struct {
	Name        string
	Label       string
	Kind        string // "text", "textarea", "number" or "select"
	Placeholder string
	Options     []string
}

// Page carries what the layout needs.
type Page struct {
	Title string
	Nonce string
}

// DefaultFeatures are the forms shown on the dashboard.
func DefaultFeatures() []Feature {
	return []Feature{
		{
			ID:          "summarize",
			Title:       "Summarize",
			Description: "Paste lecture notes or an article and get a short summary.",
			Endpoint:    "/api/v1/summarize",
			Fields: []Field{
				{Name: "text", Label: "Text", Kind: "textarea", Placeholder: "Paste the text to summarize"},
				{Name: "max_length", Label: "Words", Kind: "number", Placeholder: "150"},
				{Name: "style", Label: "Style", Kind: "select", Options: []string{"concise", "detailed", "bullet_points"}},
			},
		},
		{
			ID:          "recommend",
			Title:       "Study materials",
			Description: "Get books, courses and exercises for a subject at your level.",
			Endpoint:    "/api/v1/recommendations",
			Fields: []Field{
				{Name: "subject", Label: "Subject", Kind: "text", Placeholder: "e.g. biology"},
				{Name: "level", Label: "Level", Kind: "select", Options: []string{"beginner", "intermediate", "advanced"}},
			},
		},
		{
			ID:          "chat",
			Title:       "Ask a tutor",
			Description: "Ask a question and get a step-by-step explanation.",
			Endpoint:    "/api/v1/chat",
			Fields: []Field{
				{Name: "question", Label: "Question", Kind: "textarea", Placeholder: "What would you like to understand?"},
				{Name: "subject", Label: "Subject", Kind: "text", Placeholder: "optional"},
			},
		},
	}
}

// Layout wraps content in the HTML document. The page nonce is carried in
// the render context and stamped on the inline script.
func Layout(page Page) func(templ.Component) templ.Component {
	return func(content templ.Component) templ.Component {
		return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
			ctx = templ.WithNonce(ctx, page.Nonce)
			if _, err := io.WriteString(w, "<!DOCTYPE html>\n"); err != nil {
				return err
			}
			doc := el("html", templ.Attributes{"lang": "en"},
				el("head", nil,
					void("meta", templ.Attributes{"charset": "utf-8"}),
					void("meta", templ.Attributes{"name": "viewport", "content": "width=device-width, initial-scale=1"}),
					el("title", nil, text(page.Title)),
					el("style", nil, templ.Raw(stylesheet)),
				),
				el("body", nil,
					el("main", nil, content),
					inlineScript(),
				),
			)
			return doc.Render(ctx, w)
		})
	}
}

// Dashboard lists the features with a form each.
func Dashboard(features []Feature) templ.Component {
	cards := make([]templ.Component, 0, len(features)+1)
	cards = append(cards, el("header", nil,
		el("h1", nil, text("Smart Study Companion")),
		el("p", nil, text("Summaries, study materials and a tutor, powered by AI.")),
	))
	for _, f := range features {
		cards = append(cards, featureCard(f))
	}
	return group(cards...)
}

func featureCard(f Feature) templ.Component {
	return el("section", templ.Attributes{"class": "card", "id": f.ID},
		el("h2", nil, text(f.Title)),
		el("p", nil, text(f.Description)),
		featureForm(f),
		el("pre", templ.Attributes{"class": "result", "aria-live": "polite"}),
	)
}

func featureForm(f Feature) templ.Component {
	children := make([]templ.Component, 0, len(f.Fields)+1)
	for _, field := range f.Fields {
		children = append(children, formField(field))
	}
	children = append(children, el("button", templ.Attributes{"type": "submit"}, text("Send")))
	return el("form", templ.Attributes{"data-endpoint": f.Endpoint}, children...)
}

func formField(field Field) templ.Component {
	return el("label", nil, text(field.Label), fieldInput(field))
}

func fieldInput(field Field) templ.Component {
	switch field.Kind {
	case "textarea":
		return el("textarea", templ.Attributes{"name": field.Name, "rows": "6", "placeholder": field.Placeholder})
	case "select":
		options := make([]templ.Component, 0, len(field.Options))
		for _, opt := range field.Options {
			options = append(options, el("option", templ.Attributes{"value": opt}, text(opt)))
		}
		return el("select", templ.Attributes{"name": field.Name}, options...)
	case "number":
		return void("input", templ.Attributes{"type": "number", "name": field.Name, "placeholder": field.Placeholder})
	default:
		return void("input", templ.Attributes{"type": "text", "name": field.Name, "placeholder": field.Placeholder})
	}
}

func inlineScript() templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		return el("script", templ.Attributes{"nonce": templ.GetNonce(ctx)}, templ.Raw(script)).Render(ctx, w)
	})
}

// el renders <tag attrs>children</tag>. Attribute values are escaped by templ.
func el(tag string, attrs templ.Attributes, children ...templ.Component) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		if err := openTag(ctx, w, tag, attrs); err != nil {
			return err
		}
		for _, c := range children {
			if err := c.Render(ctx, w); err != nil {
				return err
			}
		}
		_, err := io.WriteString(w, "</"+tag+">")
		return err
	})
}

// void renders an element that has no closing tag.
func void(tag string, attrs templ.Attributes) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		return openTag(ctx, w, tag, attrs)
	})
}

func openTag(ctx context.Context, w io.Writer, tag string, attrs templ.Attributes) error {
	if _, err := io.WriteString(w, "<"+tag); err != nil {
		return err
	}
	if err := templ.RenderAttributes(ctx, w, attrs); err != nil {
		return err
	}
	_, err := io.WriteString(w, ">")
	return err
}

// text renders s as escaped character data.
func text(s string) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		_, err := io.WriteString(w, templ.EscapeString(s))
		return err
	})
}

func group(children ...templ.Component) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		for _, c := range children {
			if err := c.Render(ctx, w); err != nil {
				return err
			}
		}
		return nil
	})
}

const stylesheet = `body{font-family:system-ui,sans-serif;margin:0;background:#f6f7fb;color:#1f2430}
main{max-width:760px;margin:0 auto;padding:2rem 1rem}
.card{background:#fff;border-radius:8px;padding:1.25rem;margin:1rem 0;box-shadow:0 1px 3px rgba(0,0,0,.08)}
label{display:block;margin:.5rem 0;font-weight:600}
input,textarea,select{display:block;width:100%;margin-top:.25rem;padding:.5rem;font:inherit;box-sizing:border-box}
button{margin-top:.5rem;padding:.5rem 1rem;font:inherit;cursor:pointer}
.result{white-space:pre-wrap;background:#f0f2f7;padding:.75rem;border-radius:6px;min-height:1rem}`

const script = `document.querySelectorAll("form[data-endpoint]").forEach(function (form) {
  form.addEventListener("submit", async function (ev) {
    ev.preventDefault();
    var out = form.parentElement.querySelector(".result");
    var body = {};
    new FormData(form).forEach(function (v, k) {
      if (v === "") return;
      body[k] = form.elements[k].type === "number" ? Number(v) : v;
    });
    out.textContent = "Working...";
    try {
      var res = await fetch(form.dataset.endpoint, {
        method: "POST",
        headers: {"Content-Type": "application/json"},
        credentials: "same-origin",
        body: JSON.stringify(body)
      });
      var data = await res.json();
      if (!res.ok) { out.textContent = data.error ? data.error.message : res.statusText; return; }
      if (data.summary) out.textContent = data.summary;
      else if (data.answer) out.textContent = data.answer;
      else if (data.recommendations) out.textContent = data.recommendations.map(function (m) {
        return "- " + m.title + (m.url ? " (" + m.url + ")" : "");
      }).join("\n") || "No recommendations found.";
      else out.textContent = JSON.stringify(data, null, 2);
    } catch (err) {
      out.textContent = "Request failed: " + err;
    }
  });
});`

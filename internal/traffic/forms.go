package traffic

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/FairForge/marketplace/internal/loadtest"
)

// CSRFField is the hidden field every site form must carry.
const CSRFField = "csrfmiddlewaretoken"

var (
	// ErrNoForm is returned when no form matches the selector.
	ErrNoForm = errors.New("traffic: no matching form")
	// ErrAmbiguousForm is returned when more than one form matches.
	ErrAmbiguousForm = errors.New("traffic: more than one matching form")
	// ErrWrongForm is returned when a form lacks the CSRF token field.
	ErrWrongForm = errors.New("traffic: wrong form, no " + CSRFField + " field")
)

// FormSelector picks the form to submit from a page.
type FormSelector interface {
	SelectForm(doc *goquery.Document) (*goquery.Selection, error)
}

// FormSelectorFunc adapts a function to FormSelector.
type FormSelectorFunc func(doc *goquery.Document) (*goquery.Selection, error)

func (f FormSelectorFunc) SelectForm(doc *goquery.Document) (*goquery.Selection, error) {
	return f(doc)
}

// OnlyFormWithoutID selects the single form that has no id attribute.
func OnlyFormWithoutID() FormSelector {
	return FormSelectorFunc(func(doc *goquery.Document) (*goquery.Selection, error) {
		forms := doc.Find("form").FilterFunction(func(_ int, s *goquery.Selection) bool {
			id, ok := s.Attr("id")
			return !ok || id == ""
		})
		return exactlyOne(forms, "without an id")
	})
}

// ByID selects the form with the given id.
func ByID(id string) FormSelector {
	return FormSelectorFunc(func(doc *goquery.Document) (*goquery.Selection, error) {
		forms := doc.Find("form").FilterFunction(func(_ int, s *goquery.Selection) bool {
			v, _ := s.Attr("id")
			return v == id
		})
		return exactlyOne(forms, "with id "+id)
	})
}

func exactlyOne(forms *goquery.Selection, what string) (*goquery.Selection, error) {
	switch n := forms.Length(); n {
	case 0:
		return nil, fmt.Errorf("%w %s", ErrNoForm, what)
	case 1:
		return forms, nil
	default:
		return nil, fmt.Errorf("%w: %d forms %s", ErrAmbiguousForm, n, what)
	}
}

// Form is a parsed HTML form.
type Form struct {
	Action string // absolute URL
	Method string
	Values url.Values
}

// FindForm parses page and returns the form chosen by selector.
func FindForm(page *Response, selector FormSelector) (*Form, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page.Body))
	if err != nil {
		return nil, fmt.Errorf("parse page: %w", err)
	}
	sel, err := selector.SelectForm(doc)
	if err != nil {
		return nil, err
	}
	return parseForm(sel, page.URL)
}

func parseForm(sel *goquery.Selection, pageURL *url.URL) (*Form, error) {
	form := &Form{
		Method: strings.ToUpper(strings.TrimSpace(sel.AttrOr("method", http.MethodGet))),
		Values: url.Values{},
	}

	action := strings.TrimSpace(sel.AttrOr("action", ""))
	switch {
	case pageURL == nil:
		form.Action = action
	case action == "":
		form.Action = pageURL.String()
	default:
		ref, err := url.Parse(action)
		if err != nil {
			return nil, fmt.Errorf("parse form action %q: %w", action, err)
		}
		form.Action = pageURL.ResolveReference(ref).String()
	}

	sel.Find("input, select, textarea").Each(func(_ int, field *goquery.Selection) {
		name, ok := field.Attr("name")
		if !ok || name == "" {
			return
		}
		if _, disabled := field.Attr("disabled"); disabled {
			return
		}

		switch goquery.NodeName(field) {
		case "textarea":
			form.Values.Add(name, field.Text())
		case "select":
			options := field.Find("option[selected]")
			if options.Length() == 0 {
				if _, multiple := field.Attr("multiple"); !multiple {
					options = field.Find("option").First()
				}
			}
			options.Each(func(_ int, opt *goquery.Selection) {
				form.Values.Add(name, opt.AttrOr("value", strings.TrimSpace(opt.Text())))
			})
		default:
			switch strings.ToLower(field.AttrOr("type", "text")) {
			case "checkbox", "radio":
				if _, checked := field.Attr("checked"); checked {
					form.Values.Add(name, field.AttrOr("value", "on"))
				}
			case "submit", "button", "image", "reset", "file":
			default:
				form.Values.Add(name, field.AttrOr("value", ""))
			}
		}
	})
	return form, nil
}

// With returns the form values with overrides applied.
func (f *Form) With(overrides url.Values) url.Values {
	merged := make(url.Values, len(f.Values)+len(overrides))
	for k, vs := range f.Values {
		merged[k] = append([]string(nil), vs...)
	}
	for k, vs := range overrides {
		merged[k] = append([]string(nil), vs...)
	}
	return merged
}

// SubmitForm posts form with overrides to target, or to the form action
// when target is empty. The form must carry the CSRF field, otherwise
// ErrWrongForm is returned and no request is made. A response other than
// a redirect is recorded as a failure.
func (c *Client) SubmitForm(ctx context.Context, form *Form, overrides url.Values, target string, opts ...RequestOption) (*Response, error) {
	values := form.With(overrides)
	if _, ok := values[CSRFField]; !ok {
		return nil, ErrWrongForm
	}
	if target == "" {
		target = form.Action
	}

	opts = append(opts, NoRedirects(), Catch())
	resp, err := c.PostForm(ctx, target, values, opts...)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode != http.StatusMovedPermanently && resp.StatusCode != http.StatusFound {
		err := fmt.Errorf("Form submission did not redirect; status=%d", resp.StatusCode)
		resp.Failure(err)
		return resp, loadtest.Reported(err)
	}
	resp.Success()
	return resp, nil
}

package scripting

import (
	"fmt"
	"strconv"
	"strings"
	"sync"
)

// Field is a named form value. Values that look like numbers are stored as
// float64 so arithmetic in scripts behaves like a viewer's.
type Field struct {
	name string

	mu    sync.Mutex
	value interface{}
}

// Name returns the fully qualified field name.
func (f *Field) Name() string { return f.name }

// Value returns the current value.
func (f *Field) Value() interface{} {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.value
}

// SetValue replaces the value.
func (f *Field) SetValue(v interface{}) {
	f.mu.Lock()
	f.value = coerce(v)
	f.mu.Unlock()
}

// String formats the value the way it would be written back to the form.
func (f *Field) String() string {
	switch v := f.Value().(type) {
	case nil:
		return ""
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case int64:
		return strconv.FormatInt(v, 10)
	case bool:
		return strconv.FormatBool(v)
	default:
		return fmt.Sprint(v)
	}
}

func coerce(v interface{}) interface{} {
	switch t := v.(type) {
	case string:
		if f, err := strconv.ParseFloat(strings.TrimSpace(t), 64); err == nil {
			return f
		}
		return t
	case int:
		return float64(t)
	case int64:
		return float64(t)
	default:
		return v
	}
}

// Form is an in-memory DOM: an ordered set of fields plus the alerts
// raised by scripts.
type Form struct {
	mu     sync.Mutex
	fields map[string]*Field
	order  []string
	pages  int
	alerts []string
}

// NewForm returns an empty form for a document with the given page count.
func NewForm(pages int) *Form {
	return &Form{fields: make(map[string]*Field), pages: pages}
}

// Set creates or updates a field.
func (f *Form) Set(name string, value interface{}) *Field {
	f.mu.Lock()
	defer f.mu.Unlock()
	fld, ok := f.fields[name]
	if !ok {
		fld = &Field{name: name}
		f.fields[name] = fld
		f.order = append(f.order, name)
	}
	fld.SetValue(value)
	return fld
}

func (f *Form) Field(name string) (*Field, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fld, ok := f.fields[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrNoField, name)
	}
	return fld, nil
}

// Names returns field names in creation order.
func (f *Form) Names() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.order...)
}

// Values returns every field formatted as a string.
func (f *Form) Values() map[string]string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[string]string, len(f.fields))
	for name, fld := range f.fields {
		out[name] = fld.String()
	}
	return out
}

func (f *Form) PageCount() int { return f.pages }

func (f *Form) Alert(message string) {
	f.mu.Lock()
	f.alerts = append(f.alerts, message)
	f.mu.Unlock()
}

// Alerts returns the messages passed to app.alert so far.
func (f *Form) Alerts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.alerts...)
}

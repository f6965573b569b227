package scripting

import (
	"context"
	"errors"
	"fmt"

	"github.com/dop251/goja"
)

// Goja is an Engine backed by the goja JavaScript runtime. It is not safe
// for concurrent use.
type Goja struct {
	vm  *goja.Runtime
	dom DOM
}

func NewEngine() *Goja {
	return &Goja{vm: goja.New()}
}

func (e *Goja) Execute(ctx context.Context, script string) (interface{}, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	done := make(chan struct{})
	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		select {
		case <-ctx.Done():
			e.vm.Interrupt(ctx.Err())
		case <-done:
		}
	}()
	defer func() {
		close(done)
		<-stopped
		e.vm.ClearInterrupt()
	}()

	val, err := e.vm.RunString(script)
	if err != nil {
		var interrupted *goja.InterruptedError
		if errors.As(err, &interrupted) {
			if cause := interrupted.Unwrap(); cause != nil {
				return nil, cause
			}
			return nil, context.Canceled
		}
		return nil, err
	}
	return val.Export(), nil
}

func (e *Goja) RegisterDOM(dom DOM) error {
	app := e.vm.NewObject()
	if err := app.Set("alert", func(call goja.FunctionCall) goja.Value {
		msg := ""
		if len(call.Arguments) > 0 {
			msg = call.Arguments[0].String()
		}
		dom.Alert(msg)
		return goja.Undefined()
	}); err != nil {
		return err
	}
	if err := e.vm.Set("app", app); err != nil {
		return err
	}
	if err := e.vm.Set("numPages", dom.PageCount()); err != nil {
		return err
	}

	if err := e.vm.Set("getField", func(call goja.FunctionCall) goja.Value {
		if len(call.Arguments) < 1 {
			return goja.Undefined()
		}
		fld, err := dom.Field(call.Arguments[0].String())
		if err != nil {
			return goja.Null()
		}
		return e.fieldObject(fld)
	}); err != nil {
		return err
	}

	if err := e.vm.Set("getPage", func(call goja.FunctionCall) goja.Value {
		if len(call.Arguments) < 1 {
			return goja.Undefined()
		}
		idx := int(call.Arguments[0].ToInteger())
		if idx < 0 || idx >= dom.PageCount() {
			return goja.Null()
		}
		page := e.vm.NewObject()
		_ = page.Set("index", idx)
		return page
	}); err != nil {
		return err
	}
	e.dom = dom
	return nil
}

// Calculate runs a calculation script for the target field. The script
// reads its inputs through getField and assigns event.value; the final
// event.value is stored in the target.
func (e *Goja) Calculate(ctx context.Context, target, script string) error {
	if e.dom == nil {
		return errors.New("scripting: no DOM registered")
	}
	fld, err := e.dom.Field(target)
	if err != nil {
		return err
	}
	event := e.vm.NewObject()
	if err := event.Set("value", fld.Value()); err != nil {
		return err
	}
	if err := event.Set("target", e.fieldObject(fld)); err != nil {
		return err
	}
	if err := e.vm.Set("event", event); err != nil {
		return err
	}
	defer e.vm.Set("event", goja.Undefined())

	if _, err := e.Execute(ctx, script); err != nil {
		return fmt.Errorf("calculate %s: %w", target, err)
	}
	fld.SetValue(event.Get("value").Export())
	return nil
}

func (e *Goja) fieldObject(fld *Field) goja.Value {
	obj := e.vm.NewObject()
	_ = obj.Set("name", fld.Name())
	_ = obj.DefineAccessorProperty("value",
		e.vm.ToValue(func(goja.FunctionCall) goja.Value {
			return e.vm.ToValue(fld.Value())
		}),
		e.vm.ToValue(func(call goja.FunctionCall) goja.Value {
			if len(call.Arguments) > 0 {
				fld.SetValue(call.Arguments[0].Export())
			}
			return goja.Undefined()
		}),
		goja.FLAG_TRUE,
		goja.FLAG_TRUE,
	)
	return obj
}

package formpage

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// fakeDriver records every interaction keyed by selector.
type fakeDriver struct {
	visited  []string
	actions  []string
	values   map[string]string
	texts    map[string]string
	enabled  func() bool
	visible  map[string]bool
	failOn   map[string]error
	onSubmit func(d *fakeDriver)
}

func newFakeDriver() *fakeDriver {
	return &fakeDriver{
		values:  map[string]string{},
		texts:   map[string]string{},
		visible: map[string]bool{},
		failOn:  map[string]error{},
	}
}

func (d *fakeDriver) Goto(url string) error {
	d.visited = append(d.visited, url)
	return nil
}

func (d *fakeDriver) Locate(selector string) control {
	return &fakeControl{d: d, sel: selector}
}

type fakeControl struct {
	d   *fakeDriver
	sel string
}

func (c *fakeControl) record(action string) error {
	c.d.actions = append(c.d.actions, action+" "+c.sel)
	return c.d.failOn[action+" "+c.sel]
}

func (c *fakeControl) Fill(value string) error {
	c.d.values[c.sel] = value
	return c.record("fill=" + value)
}

func (c *fakeControl) Check() error   { return c.record("check") }
func (c *fakeControl) Uncheck() error { return c.record("uncheck") }

func (c *fakeControl) Click() error {
	if err := c.record("click"); err != nil {
		return err
	}
	if c.sel == SubmitSelector && c.d.onSubmit != nil {
		c.d.onSubmit(c.d)
	}
	return nil
}

func (c *fakeControl) SetInputFiles(path string) error {
	c.d.values[c.sel] = path
	return c.record("upload=" + path)
}

func (c *fakeControl) SelectValue(value string) error { return c.record("select-value=" + value) }
func (c *fakeControl) SelectLabel(label string) error { return c.record("select-label=" + label) }

func (c *fakeControl) InnerText() (string, error) { return c.d.texts[c.sel], nil }
func (c *fakeControl) InputValue() (string, error) {
	return c.d.values[c.sel], nil
}

func (c *fakeControl) IsEnabled() (bool, error) {
	if c.d.enabled == nil {
		return true, nil
	}
	return c.d.enabled(), nil
}

func (c *fakeControl) WaitVisible(timeout time.Duration) error {
	if c.d.visible[c.sel] {
		return nil
	}
	return fmt.Errorf("timeout %s waiting for %s", timeout, c.sel)
}

func noSleep(context.Context, time.Duration) error { return nil }

func statExisting(paths ...string) func(string) error {
	return func(p string) error {
		for _, ok := range paths {
			if p == ok {
				return nil
			}
		}
		return errors.New("no such file")
	}
}

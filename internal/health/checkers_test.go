package health

import (
	"context"
	"errors"
	"testing"
)

type fakePinger struct{ err error }

func (p fakePinger) Ping(context.Context) error { return p.err }

func TestDatabaseChecker(t *testing.T) {
	c := Database(fakePinger{})
	if err := c.Check(context.Background()); err != nil {
		t.Errorf("healthy database check = %v", err)
	}

	dbErr := errors.New("connection refused")
	c = Database(fakePinger{err: dbErr})
	if err := c.Check(context.Background()); !errors.Is(err, dbErr) {
		t.Errorf("failing database check = %v, want %v", err, dbErr)
	}
	if c.Name != "database" {
		t.Errorf("Name = %q", c.Name)
	}
}

func TestAudioNodeChecker(t *testing.T) {
	up := false
	c := AudioNode(func() bool { return up })

	if err := c.Check(context.Background()); !errors.Is(err, ErrNodeDown) {
		t.Errorf("down node check = %v, want ErrNodeDown", err)
	}

	up = true
	if err := c.Check(context.Background()); err != nil {
		t.Errorf("up node check = %v", err)
	}
}

package logging

import (
	"testing"

	"github.com/sirupsen/logrus"
)

func TestNew(t *testing.T) {
	l := New("prod", "debug")
	if _, ok := l.Formatter.(*logrus.JSONFormatter); !ok {
		t.Fatalf("prod formatter = %T", l.Formatter)
	}
	if l.GetLevel() != logrus.DebugLevel {
		t.Fatalf("level = %s", l.GetLevel())
	}
	if New("dev", "nonsense").GetLevel() != logrus.InfoLevel {
		t.Fatal("unknown level should fall back to info")
	}
}

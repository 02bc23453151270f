package env

import (
	"testing"
	"time"
)

func TestString(t *testing.T) {
	if got := String("ENV_STRING_DOES_NOT_EXIST", "fallback"); got != "fallback" {
		t.Fatalf("String()=%q, want fallback", got)
	}
	t.Setenv("ENV_STRING_KEY", "value")
	if got := String("ENV_STRING_KEY", "fallback"); got != "value" {
		t.Fatalf("String()=%q, want value", got)
	}
}

func TestDuration(t *testing.T) {
	got, err := Duration("ENV_DURATION_DOES_NOT_EXIST", 5*time.Second)
	if err != nil || got != 5*time.Second {
		t.Fatalf("Duration()=%v err=%v, want 5s", got, err)
	}

	t.Setenv("ENV_DURATION_KEY", "250ms")
	got, err = Duration("ENV_DURATION_KEY", 5*time.Second)
	if err != nil || got != 250*time.Millisecond {
		t.Fatalf("Duration()=%v err=%v, want 250ms", got, err)
	}

	t.Setenv("ENV_DURATION_KEY", "not-a-duration")
	if _, err := Duration("ENV_DURATION_KEY", 5*time.Second); err == nil {
		t.Fatalf("Duration() expected error")
	}
}

func TestBool(t *testing.T) {
	got, err := Bool("ENV_BOOL_DOES_NOT_EXIST", true)
	if err != nil || got != true {
		t.Fatalf("Bool()=%v err=%v, want true", got, err)
	}

	t.Setenv("ENV_BOOL_KEY", "false")
	got, err = Bool("ENV_BOOL_KEY", true)
	if err != nil || got != false {
		t.Fatalf("Bool()=%v err=%v, want false", got, err)
	}

	t.Setenv("ENV_BOOL_KEY", "nope")
	if _, err := Bool("ENV_BOOL_KEY", false); err == nil {
		t.Fatalf("Bool() expected error")
	}
}

func TestInt(t *testing.T) {
	got, err := Int("ENV_INT_DOES_NOT_EXIST", 42)
	if err != nil || got != 42 {
		t.Fatalf("Int()=%v err=%v, want 42", got, err)
	}

	t.Setenv("ENV_INT_KEY", "7")
	got, err = Int("ENV_INT_KEY", 42)
	if err != nil || got != 7 {
		t.Fatalf("Int()=%v err=%v, want 7", got, err)
	}

	t.Setenv("ENV_INT_KEY", "nope")
	if _, err := Int("ENV_INT_KEY", 42); err == nil {
		t.Fatalf("Int() expected error")
	}
}

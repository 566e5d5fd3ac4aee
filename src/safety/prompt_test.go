package safety_test

import (
	"bytes"
	"strings"
	"testing"

	"openstack-backup/src/safety"
)

func TestConfirm_AutoYes(t *testing.T) {
	for _, opts := range []safety.Options{{Yes: true}, {Force: true}} {
		var out bytes.Buffer
		ok, err := safety.Confirm(opts, strings.NewReader(""), &out, "restore nova?")
		if err != nil {
			t.Fatal(err)
		}
		if !ok {
			t.Fatalf("%+v: expected confirmation", opts)
		}
		if out.Len() != 0 {
			t.Fatalf("%+v: unexpected prompt %q", opts, out.String())
		}
	}
}

func TestConfirm_DryRun(t *testing.T) {
	var out bytes.Buffer
	ok, err := safety.Confirm(safety.Options{DryRun: true, Yes: true}, strings.NewReader("y\n"), &out, "proceed?")
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Fatalf("expected dry-run to decline")
	}
}

func TestConfirm_UserInput(t *testing.T) {
	cases := []struct {
		in   string
		want bool
	}{
		{"y\n", true},
		{"yes\n", true},
		{"Y\n", true},
		{"No\n", false},
		{"\n", false},
		{"", false},
	}
	for _, c := range cases {
		var out bytes.Buffer
		got, err := safety.Confirm(safety.Options{}, strings.NewReader(c.in), &out, "restore keystone?")
		if err != nil {
			t.Fatal(err)
		}
		if got != c.want {
			t.Fatalf("input %q: got %v want %v", c.in, got, c.want)
		}
		if !strings.Contains(out.String(), "restore keystone? [y/N]") {
			t.Fatalf("prompt missing question; got %q", out.String())
		}
	}
}

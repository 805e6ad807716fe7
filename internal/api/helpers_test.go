package api

import "testing"

func TestMarshalData(t *testing.T) {
	raw, err := marshalData(map[string]any{"repositoryPath": "/tmp/x"})
	if err != nil {
		t.Fatalf("marshalData: %v", err)
	}
	if string(raw) != `{"repositoryPath":"/tmp/x"}` {
		t.Errorf("unexpected encoding: %s", raw)
	}
}

func TestClampLimit(t *testing.T) {
	cases := []struct {
		n, max, want int
	}{
		{0, 100, 100},
		{-5, 100, 100},
		{50, 100, 50},
		{1000, 100, 100},
		{100, 100, 100},
	}
	for _, c := range cases {
		if got := clampLimit(c.n, c.max); got != c.want {
			t.Errorf("clampLimit(%d, %d) = %d, want %d", c.n, c.max, got, c.want)
		}
	}
}

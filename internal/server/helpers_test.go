package server

import (
	"testing"

	"livecast/internal/coordinator"
	"livecast/internal/store"
)

func newTestServer(t *testing.T) (*Server, *store.Store, *coordinator.Coordinator) {
	t.Helper()
	s, err := store.New(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Migrate("../../migrations"); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { s.Close() })

	coord := coordinator.New(s)
	srv := NewServer(s, coord)
	return srv, s, coord
}

package domain

import (
	"testing"

	"github.com/google/uuid"
)

func TestActorValid(t *testing.T) {
	id := uuid.New()

	tests := []struct {
		name  string
		actor Actor
		want  bool
	}{
		{name: "student with id", actor: StudentActor(id), want: true},
		{name: "admin with id", actor: AdminActor(id), want: true},
		{name: "system without id", actor: SystemActor(), want: true},
		{name: "student without id", actor: Actor{Type: ActorTypeStudent}, want: false},
		{name: "admin without id", actor: Actor{Type: ActorTypeAdmin}, want: false},
		{name: "system with id", actor: Actor{Type: ActorTypeSystem, ID: &id}, want: false},
		{name: "unknown kind", actor: Actor{Type: "auditor", ID: &id}, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.actor.Valid(); got != tt.want {
				t.Fatalf("expected valid=%t, got %t", tt.want, got)
			}
		})
	}
}

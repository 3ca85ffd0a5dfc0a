package domain

import "testing"

func TestAssignmentStatusFor(t *testing.T) {
	tests := []struct {
		name       string
		amountPaid int64
		amountDue  int64
		want       string
	}{
		{
			name:       "nothing paid stays assigned",
			amountPaid: 0,
			amountDue:  500000,
			want:       AssignmentStatusAssigned,
		},
		{
			name:       "negative balance stays assigned",
			amountPaid: -100,
			amountDue:  500000,
			want:       AssignmentStatusAssigned,
		},
		{
			name:       "partial balance is partially paid",
			amountPaid: 200000,
			amountDue:  500000,
			want:       AssignmentStatusPartiallyPaid,
		},
		{
			name:       "one kobo short is still partially paid",
			amountPaid: 499999,
			amountDue:  500000,
			want:       AssignmentStatusPartiallyPaid,
		},
		{
			name:       "exact balance is fully paid",
			amountPaid: 500000,
			amountDue:  500000,
			want:       AssignmentStatusFullyPaid,
		},
		{
			name:       "overpayment caps at fully paid",
			amountPaid: 600000,
			amountDue:  500000,
			want:       AssignmentStatusFullyPaid,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := AssignmentStatusFor(tt.amountPaid, tt.amountDue)
			if got != tt.want {
				t.Fatalf("expected status=%q, got %q", tt.want, got)
			}
		})
	}
}

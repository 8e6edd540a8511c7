package jobs

import "testing"

func TestNormalizeMissingRecord(t *testing.T) {
	view := Normalize(nil)
	if view.Status != PublicFailure || view.Progress != 0 {
		t.Fatalf("unexpected view: %#v", view)
	}
}

func TestNormalize(t *testing.T) {
	cases := []struct {
		name   string
		record Record
		want   PublicView
	}{
		{
			name:   "queued reports as early progress",
			record: Record{Status: StatusQueued},
			want:   PublicView{Status: PublicProgress, Progress: 0},
		},
		{
			name:   "unknown status reports as early progress",
			record: Record{Status: Status("draining")},
			want:   PublicView{Status: PublicProgress, Progress: 0},
		},
		{
			name:   "running carries percent",
			record: Record{Status: StatusRunning, Progress: ProgressInfo{Percent: 60, Stage: "entry"}},
			want:   PublicView{Status: PublicProgress, Progress: 60},
		},
		{
			name: "success pins progress and exposes result",
			record: Record{
				Status:   StatusSucceeded,
				Progress: ProgressInfo{Percent: 80},
				Result:   "/media/notes/pdf/doc.pdf",
			},
			want: PublicView{Status: PublicSuccess, Progress: 100, Result: "/media/notes/pdf/doc.pdf"},
		},
		{
			name: "failure resets progress and hides result",
			record: Record{
				Status:   StatusFailed,
				Progress: ProgressInfo{Percent: 40},
				Error:    &ErrorInfo{Code: "STORAGE_ERROR", Message: "storage failed"},
			},
			want: PublicView{Status: PublicFailure, Progress: 0},
		},
	}

	for _, tc := range cases {
		if got := Normalize(&tc.record); got != tc.want {
			t.Fatalf("%s: got %#v, want %#v", tc.name, got, tc.want)
		}
	}
}

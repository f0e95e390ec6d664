package rumble

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTimestamp(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		in      string
		want    time.Time
		wantErr bool
	}{
		{
			name: "with offset suffix",
			in:   "2023-04-05T06:07:08-04:00",
			want: time.Date(2023, 4, 5, 6, 7, 8, 0, time.UTC),
		},
		{
			name: "bare timestamp",
			in:   "2023-04-05T06:07:08",
			want: time.Date(2023, 4, 5, 6, 7, 8, 0, time.UTC),
		},
		{
			name:    "empty",
			in:      "",
			wantErr: true,
		},
		{
			name:    "garbage",
			in:      "not a timestamp, no",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := ParseTimestamp(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.True(t, got.Equal(tt.want), "got %v, want %v", got, tt.want)
		})
	}
}

func TestStatusError(t *testing.T) {
	t.Parallel()

	err := &StatusError{Code: 503}
	assert.Contains(t, err.Error(), "503")

	err = &StatusError{Code: 403, Body: "denied"}
	assert.Contains(t, err.Error(), "denied")
}

package jobs

import (
	"context"
	"errors"
	"testing"

	"github.com/npezzotti/earth-board/internal/database"
	"github.com/npezzotti/earth-board/internal/lifecycle"
	"github.com/npezzotti/earth-board/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

type mockRoller struct {
	mock.Mock
}

func (m *mockRoller) Rollover(ctx context.Context) (lifecycle.RolloverResult, error) {
	args := m.Called()
	return args.Get(0).(lifecycle.RolloverResult), args.Error(1)
}

func TestRolloverJob_Execute(t *testing.T) {
	archived := database.Canvas{Id: "c13", Date: "2026-01-13", ObjectCount: 12, ParticipantCount: 4}
	created := database.Canvas{Id: "c14", Date: "2026-01-14", Name: "I.XIV.MMXXVI"}

	tcases := []struct {
		name   string
		result lifecycle.RolloverResult
		err    error
	}{
		{
			name:   "archives and creates",
			result: lifecycle.RolloverResult{Archived: &archived, Created: created},
		},
		{
			name:   "reuses today's canvas",
			result: lifecycle.RolloverResult{Created: created, Reused: true},
		},
		{
			name: "failure is returned",
			err:  errors.New("connection refused"),
		},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			roller := &mockRoller{}
			roller.On("Rollover").Return(tc.result, tc.err).Once()

			job := NewRolloverJob(testutil.TestLogger(t), roller)
			res, err := job.Execute(context.Background())

			roller.AssertExpectations(t)
			if tc.err != nil {
				assert.ErrorIs(t, err, tc.err)
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, tc.result, res)
		})
	}
}

func TestRolloverJob_Run(t *testing.T) {
	roller := &mockRoller{}
	roller.On("Rollover").Return(lifecycle.RolloverResult{}, errors.New("boom")).Once()

	// Run swallows errors; the job must not panic under cron.
	assert.NotPanics(t, NewRolloverJob(testutil.TestLogger(t), roller).Run)
	roller.AssertExpectations(t)
}

package github_test

import (
	"context"
	"log/slog"
	"testing"

	gogithub "github.com/google/go-github/v73/github"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/wardenhq/warden/internal/github"
	"github.com/wardenhq/warden/internal/render"
	"github.com/wardenhq/warden/mocks"
)

func TestStatusUpdater_InProgress_CreatesCheckRunInProgress(t *testing.T) {
	ctrl := gomock.NewController(t)
	client := mocks.NewMockClient(ctrl)

	client.EXPECT().
		CreateCheckRun(gomock.Any(), "o", "r", gomock.Any()).
		DoAndReturn(func(_ context.Context, _, _ string, opts gogithub.CreateCheckRunOptions) (*gogithub.CheckRun, error) {
			require.Equal(t, "in_progress", opts.GetStatus())
			return &gogithub.CheckRun{ID: gogithub.Ptr(int64(7))}, nil
		})

	su := github.NewStatusUpdater(client, slog.Default())
	id, err := su.InProgress(context.Background(), "o", "r", "sha1", "Warden", "running")
	require.NoError(t, err)
	require.Equal(t, int64(7), id)
}

func TestStatusUpdater_Completed_UpdatesCheckRunInOrder(t *testing.T) {
	ctrl := gomock.NewController(t)
	client := mocks.NewMockClient(ctrl)

	gomock.InOrder(
		client.EXPECT().UpdateCheckRun(gomock.Any(), "o", "r", int64(7), gomock.Any()).Return(nil),
	)

	su := github.NewStatusUpdater(client, slog.Default())
	err := su.Completed(context.Background(), "o", "r", 7, "success", "Warden", "done")
	require.NoError(t, err)
}

func TestStatusUpdater_PostReview_PostsReviewThenSummary(t *testing.T) {
	ctrl := gomock.NewController(t)
	client := mocks.NewMockClient(ctrl)

	out := render.Output{
		Review: &render.Review{
			Verdict:  "COMMENT",
			Comments: []render.InlineComment{{Path: "a.go", Line: 10, Body: "finding"}},
		},
		SummaryComment: "summary text",
	}

	gomock.InOrder(
		client.EXPECT().
			CreateReview(gomock.Any(), "o", "r", 1, "sha1", "", gomock.Len(1)).
			Return(nil),
		client.EXPECT().
			CreateComment(gomock.Any(), "o", "r", 1, "summary text").
			Return(nil),
	)

	su := github.NewStatusUpdater(client, slog.Default())
	err := su.PostReview(context.Background(), "o", "r", 1, "sha1", out)
	require.NoError(t, err)
}

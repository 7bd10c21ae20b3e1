// SPDX-License-Identifier: AGPL-3.0-or-later

package library

import (
	"context"
	"errors"
	"testing"

	"github.com/quzard/misaka-danmu-server/internal/apperr"
)

func createTestWork(t *testing.T, s *Store, title string) int64 {
	t.Helper()
	id, err := s.CreateWork(context.Background(), &Work{Title: title, Type: WorkTypeTVSeries, Season: 1})
	if err != nil {
		t.Fatalf("CreateWork(%q): %v", title, err)
	}
	return id
}

func TestSetFavoritedEnforcesAtMostOnePerWork(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	workID := createTestWork(t, s, "One Piece")
	src1, err := s.CreateSource(ctx, &Source{AnimeID: workID, ProviderName: "bilibili", MediaID: "op-1"})
	if err != nil {
		t.Fatalf("CreateSource: %v", err)
	}
	src2, err := s.CreateSource(ctx, &Source{AnimeID: workID, ProviderName: "tencent", MediaID: "op-2"})
	if err != nil {
		t.Fatalf("CreateSource: %v", err)
	}

	if err := s.SetFavorited(ctx, workID, src1); err != nil {
		t.Fatalf("SetFavorited(src1): %v", err)
	}
	if err := s.SetFavorited(ctx, workID, src2); err != nil {
		t.Fatalf("SetFavorited(src2): %v", err)
	}

	sources, err := s.ListSourcesForWork(ctx, workID)
	if err != nil {
		t.Fatalf("ListSourcesForWork: %v", err)
	}

	favoritedCount := 0
	for _, src := range sources {
		if src.IsFavorited {
			favoritedCount++
			if src.ID != src2 {
				t.Errorf("expected src2 (%d) to be the favorite, got %d", src2, src.ID)
			}
		}
	}
	if favoritedCount != 1 {
		t.Errorf("expected exactly 1 favorited source, got %d", favoritedCount)
	}
}

func TestReassociateSourceTargetWinsOnDoubleFavorite(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	origin := createTestWork(t, s, "Naruto")
	dest := createTestWork(t, s, "Naruto Shippuden")

	movedSrc, err := s.CreateSource(ctx, &Source{AnimeID: origin, ProviderName: "bilibili", MediaID: "n-1"})
	if err != nil {
		t.Fatalf("CreateSource(moved): %v", err)
	}
	if err := s.SetFavorited(ctx, origin, movedSrc); err != nil {
		t.Fatalf("SetFavorited(moved): %v", err)
	}

	destSrc, err := s.CreateSource(ctx, &Source{AnimeID: dest, ProviderName: "tencent", MediaID: "n-2"})
	if err != nil {
		t.Fatalf("CreateSource(dest): %v", err)
	}
	if err := s.SetFavorited(ctx, dest, destSrc); err != nil {
		t.Fatalf("SetFavorited(dest): %v", err)
	}

	if err := s.ReassociateSource(ctx, movedSrc, dest); err != nil {
		t.Fatalf("ReassociateSource: %v", err)
	}

	moved, err := s.GetSourceByID(ctx, movedSrc)
	if err != nil {
		t.Fatalf("GetSourceByID(moved): %v", err)
	}
	if moved.IsFavorited {
		t.Error("moved source should have had its favorite flag cleared (target wins)")
	}
	if moved.AnimeID != dest {
		t.Errorf("moved source AnimeID = %d, want %d", moved.AnimeID, dest)
	}

	destAfter, err := s.GetSourceByID(ctx, destSrc)
	if err != nil {
		t.Fatalf("GetSourceByID(dest): %v", err)
	}
	if !destAfter.IsFavorited {
		t.Error("destination's original favorite should remain untouched")
	}
}

func TestCreateSourceDuplicateProviderMediaIDConflicts(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	workID := createTestWork(t, s, "Jujutsu Kaisen")

	if _, err := s.CreateSource(ctx, &Source{AnimeID: workID, ProviderName: "iqiyi", MediaID: "jjk-1"}); err != nil {
		t.Fatalf("first CreateSource: %v", err)
	}
	_, err := s.CreateSource(ctx, &Source{AnimeID: workID, ProviderName: "iqiyi", MediaID: "jjk-1"})
	if !errors.Is(err, apperr.Conflict) {
		t.Errorf("expected apperr.Conflict, got %v", err)
	}
}

func TestClearSourceDataKeepsSourceRow(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	workID, err := s.CreateWork(ctx, &Work{Title: "Odd Taxi", Type: WorkTypeTVSeries, Season: 1})
	if err != nil {
		t.Fatalf("CreateWork: %v", err)
	}
	sourceID, err := s.CreateSource(ctx, &Source{AnimeID: workID, ProviderName: "bilibili", MediaID: "ss100"})
	if err != nil {
		t.Fatalf("CreateSource: %v", err)
	}
	episodeID, err := s.CreateEpisode(ctx, &Episode{SourceID: sourceID, EpisodeIndex: 1, Title: "第1集", ProviderEpisodeID: "ep1"})
	if err != nil {
		t.Fatalf("CreateEpisode: %v", err)
	}
	if _, err := s.InsertComments(ctx, episodeID, "bilibili", []*Comment{
		{CID: "a", P: "1.00,1,25,16777215,[bilibili]", M: "hi", T: 1},
	}); err != nil {
		t.Fatalf("InsertComments: %v", err)
	}

	if err := s.ClearSourceData(ctx, sourceID); err != nil {
		t.Fatalf("ClearSourceData: %v", err)
	}

	if _, err := s.GetSourceByID(ctx, sourceID); err != nil {
		t.Errorf("source row should survive the wipe, got %v", err)
	}
	episodes, err := s.ListEpisodesForSource(ctx, sourceID)
	if err != nil {
		t.Fatalf("ListEpisodesForSource: %v", err)
	}
	if len(episodes) != 0 {
		t.Errorf("episodes = %d after clear, want 0", len(episodes))
	}
}

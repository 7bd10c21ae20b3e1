// SPDX-License-Identifier: AGPL-3.0-or-later

package library

import (
	"context"
	"testing"
)

func createTestEpisode(t *testing.T, s *Store, sourceID int64, index int) int64 {
	t.Helper()
	id, err := s.CreateEpisode(context.Background(), &Episode{
		SourceID: sourceID, EpisodeIndex: index, Title: "Ep", ProviderEpisodeID: "p",
	})
	if err != nil {
		t.Fatalf("CreateEpisode: %v", err)
	}
	return id
}

func TestInsertCommentsIsIdempotent(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	workID := createTestWork(t, s, "Vinland Saga")
	sourceID := createTestSource(t, s, workID, "bilibili", "vs-1")
	episodeID := createTestEpisode(t, s, sourceID, 1)

	comments := []*Comment{
		{CID: "c1", P: "1.5,1,25,16777215,[bilibili]", M: "hello", T: 1.5},
		{CID: "c2", P: "3.0,4,25,16777215,[bilibili]", M: "world", T: 3.0},
	}

	res, err := s.InsertComments(ctx, episodeID, "bilibili", comments)
	if err != nil {
		t.Fatalf("InsertComments: %v", err)
	}
	if res.Inserted != 2 || res.Deduplicated != 0 {
		t.Errorf("first insert: got %+v, want Inserted=2 Deduplicated=0", res)
	}

	// Re-fetch with one overlapping cid.
	res2, err := s.InsertComments(ctx, episodeID, "bilibili", []*Comment{
		comments[0],
		{CID: "c3", P: "5.0,1,25,16777215,[bilibili]", M: "new", T: 5.0},
	})
	if err != nil {
		t.Fatalf("InsertComments (2nd): %v", err)
	}
	if res2.Inserted != 1 || res2.Deduplicated != 1 {
		t.Errorf("second insert: got %+v, want Inserted=1 Deduplicated=1", res2)
	}

	count, err := s.CountCommentsForEpisode(ctx, episodeID)
	if err != nil {
		t.Fatalf("CountCommentsForEpisode: %v", err)
	}
	if count != 3 {
		t.Errorf("count = %d, want 3", count)
	}
}

func TestListCommentsForEpisodeOrdersByTime(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	workID := createTestWork(t, s, "Made in Abyss")
	sourceID := createTestSource(t, s, workID, "acfun", "mia-1")
	episodeID := createTestEpisode(t, s, sourceID, 1)

	_, err := s.InsertComments(ctx, episodeID, "acfun", []*Comment{
		{CID: "late", P: "9.0,1,25,0,[acfun]", M: "late", T: 9.0},
		{CID: "early", P: "1.0,1,25,0,[acfun]", M: "early", T: 1.0},
	})
	if err != nil {
		t.Fatalf("InsertComments: %v", err)
	}

	comments, err := s.ListCommentsForEpisode(ctx, episodeID)
	if err != nil {
		t.Fatalf("ListCommentsForEpisode: %v", err)
	}
	if len(comments) != 2 {
		t.Fatalf("len(comments) = %d, want 2", len(comments))
	}
	if comments[0].CID != "early" || comments[1].CID != "late" {
		t.Errorf("expected early before late, got order %q, %q", comments[0].CID, comments[1].CID)
	}
}

func TestGetExistingCommentCids(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	workID, err := s.CreateWork(ctx, &Work{Title: "Heike Story", Type: WorkTypeTVSeries, Season: 1})
	if err != nil {
		t.Fatalf("CreateWork: %v", err)
	}
	sourceID, err := s.CreateSource(ctx, &Source{AnimeID: workID, ProviderName: "bilibili", MediaID: "ss200"})
	if err != nil {
		t.Fatalf("CreateSource: %v", err)
	}
	episodeID, err := s.CreateEpisode(ctx, &Episode{SourceID: sourceID, EpisodeIndex: 1, Title: "第1集", ProviderEpisodeID: "ep1"})
	if err != nil {
		t.Fatalf("CreateEpisode: %v", err)
	}

	cids, err := s.GetExistingCommentCids(ctx, episodeID)
	if err != nil {
		t.Fatalf("GetExistingCommentCids: %v", err)
	}
	if len(cids) != 0 {
		t.Errorf("cids = %d for fresh episode, want 0", len(cids))
	}

	if _, err := s.InsertComments(ctx, episodeID, "bilibili", []*Comment{
		{CID: "a", P: "1.00,1,25,16777215,[bilibili]", M: "x", T: 1},
		{CID: "b", P: "2.00,1,25,16777215,[bilibili]", M: "y", T: 2},
	}); err != nil {
		t.Fatalf("InsertComments: %v", err)
	}

	cids, err = s.GetExistingCommentCids(ctx, episodeID)
	if err != nil {
		t.Fatalf("GetExistingCommentCids: %v", err)
	}
	if _, ok := cids["a"]; !ok {
		t.Error("expected cid a present")
	}
	if _, ok := cids["b"]; !ok {
		t.Error("expected cid b present")
	}
	if len(cids) != 2 {
		t.Errorf("cids = %d, want 2", len(cids))
	}
}

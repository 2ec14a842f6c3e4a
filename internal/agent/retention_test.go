package agent

import (
	"math/rand"
	"testing"
)

func img(tag byte) ContentBlock {
	return ImageBlock("image/png", []byte{tag})
}

func TestFilterRecentImages(t *testing.T) {
	history := []Message{
		{Role: RoleUser, Content: []ContentBlock{TextBlock("start"), img(1)}},
		{Role: RoleUser, Content: []ContentBlock{img(2)}},
		{Role: RoleTool, Content: []ContentBlock{{Type: BlockToolResult, ToolUseID: "t", Content: []ContentBlock{TextBlock("ok"), img(3)}}}},
		{Role: RoleUser, Content: []ContentBlock{img(4), TextBlock("mid"), img(5)}},
	}

	tests := []struct {
		name     string
		keep     int
		wantTags []byte
		wantMsgs int
	}{
		{"keep all", 10, []byte{1, 2, 3, 4, 5}, 4},
		{"keep two", 2, []byte{4, 5}, 3},
		{"keep three counts nested", 3, []byte{3, 4, 5}, 3},
		{"keep four", 4, []byte{2, 3, 4, 5}, 4},
		{"disabled", 0, []byte{1, 2, 3, 4, 5}, 4},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FilterRecentImages(history, tt.keep)
			if tags := imageTags(got); string(tags) != string(tt.wantTags) {
				t.Fatalf("kept images = %v, want %v", tags, tt.wantTags)
			}
			if len(got) != tt.wantMsgs {
				t.Fatalf("messages = %d, want %d", len(got), tt.wantMsgs)
			}
		})
	}

	// The caller's history is untouched.
	if imagesIn(history) != 5 {
		t.Fatalf("input history was modified: %d images", imagesIn(history))
	}
}

func TestFilterRecentImagesKeepsTextOnlyMessages(t *testing.T) {
	history := []Message{
		{Role: RoleUser, Content: []ContentBlock{img(1)}},
		{Role: RoleAssistant, Content: []ContentBlock{TextBlock("a")}},
		{Role: RoleUser, Content: []ContentBlock{img(2)}},
	}
	got := FilterRecentImages(history, 1)
	if len(got) != 2 || got[0].Role != RoleAssistant || imageTags(got)[0] != 2 {
		t.Fatalf("FilterRecentImages() = %+v", got)
	}
}

func TestFilterRecentImagesProperty(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for round := 0; round < 200; round++ {
		var history []Message
		var tag byte
		for m := 0; m < 1+rng.Intn(8); m++ {
			var blocks []ContentBlock
			for b := 0; b < 1+rng.Intn(4); b++ {
				if rng.Intn(2) == 0 {
					tag++
					blocks = append(blocks, img(tag))
				} else {
					blocks = append(blocks, TextBlock("t"))
				}
			}
			history = append(history, Message{Role: RoleUser, Content: blocks})
		}
		keep := 1 + rng.Intn(5)

		got := imageTags(FilterRecentImages(history, keep))
		all := imageTags(history)
		want := all
		if len(all) > keep {
			want = all[len(all)-keep:]
		}
		if string(got) != string(want) {
			t.Fatalf("round %d keep %d: kept %v, want %v", round, keep, got, want)
		}
	}
}

func imageTags(history []Message) []byte {
	var tags []byte
	var walk func([]ContentBlock)
	walk = func(blocks []ContentBlock) {
		for _, b := range blocks {
			switch b.Type {
			case BlockImage:
				tags = append(tags, b.Data[0])
			case BlockToolResult:
				walk(b.Content)
			}
		}
	}
	for _, msg := range history {
		walk(msg.Content)
	}
	return tags
}

package agent

// FilterRecentImages keeps only the keep most recent image blocks in history.
//
// Messages are walked newest to oldest and blocks within a message last to
// first, so "recent" follows turn order. Images nested in tool_result content
// count in the same walk. Non-image blocks are always kept; a message left
// with no blocks is dropped. The input slice and its blocks are not modified.
// keep <= 0 returns history unchanged.
func FilterRecentImages(history []Message, keep int) []Message {
	if keep <= 0 || len(history) == 0 {
		return history
	}

	seen := 0
	kept := make([]Message, 0, len(history))
	for i := len(history) - 1; i >= 0; i-- {
		msg := history[i]
		if countImages(msg.Content) == 0 {
			kept = append(kept, msg)
			continue
		}
		blocks := filterBlocks(msg.Content, keep, &seen)
		if len(blocks) == 0 {
			continue
		}
		kept = append(kept, Message{Role: msg.Role, Content: blocks})
	}

	for l, r := 0, len(kept)-1; l < r; l, r = l+1, r-1 {
		kept[l], kept[r] = kept[r], kept[l]
	}
	return kept
}

// filterBlocks returns a new slice holding blocks minus the images beyond
// the budget, walking from the last block.
func filterBlocks(blocks []ContentBlock, keep int, seen *int) []ContentBlock {
	out := make([]ContentBlock, 0, len(blocks))
	for j := len(blocks) - 1; j >= 0; j-- {
		block := blocks[j]
		switch block.Type {
		case BlockImage:
			if *seen >= keep {
				continue
			}
			*seen++
		case BlockToolResult:
			if countImages(block.Content) > 0 {
				block.Content = filterBlocks(block.Content, keep, seen)
			}
		}
		out = append(out, block)
	}
	for l, r := 0, len(out)-1; l < r; l, r = l+1, r-1 {
		out[l], out[r] = out[r], out[l]
	}
	return out
}

package paywall

import "math/big"

// Video returns the caller's view of id. The content reference is blanked
// unless the caller has access; pass the zero identity for anonymous reads.
func (e *Engine) Video(id uint64, caller [20]byte) (*VideoView, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	video, ok, err := e.ledger.Video(id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrVideoNotFound
	}
	access := false
	if !isZeroAddress(caller) {
		if access, err = e.HasAccess(id, caller); err != nil {
			return nil, err
		}
	}
	view := &VideoView{
		ID:            video.ID,
		Creator:       video.Creator,
		Price:         newBigInt(video.Price),
		TotalEarnings: newBigInt(video.TotalEarnings),
		ViewCount:     video.ViewCount,
		CreatedAt:     video.CreatedAt,
		Status:        video.Status,
		HasAccess:     access,
	}
	if access {
		view.ContentRef = video.ContentRef
		if caller != video.Creator {
			at, ok, err := e.ledger.GrantTime(id, caller)
			if err != nil {
				return nil, err
			}
			if ok {
				view.UnlockedAt = at
			}
		}
	}
	return view, nil
}

// ListVideos pages through videos by id: offset+1 up to offset+limit, clamped
// to the number of videos. An offset past the end yields an empty page.
func (e *Engine) ListVideos(offset, limit uint64) ([]VideoSummary, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	total, err := e.ledger.TotalVideos()
	if err != nil {
		return nil, err
	}
	if offset >= total || limit == 0 {
		return []VideoSummary{}, nil
	}
	end := total
	if remaining := total - offset; limit < remaining {
		end = offset + limit
	}
	out := make([]VideoSummary, 0, end-offset)
	for id := offset + 1; id <= end; id++ {
		video, ok, err := e.ledger.Video(id)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		out = append(out, VideoSummary{
			ID:            video.ID,
			Creator:       video.Creator,
			Price:         newBigInt(video.Price),
			TotalEarnings: newBigInt(video.TotalEarnings),
			ViewCount:     video.ViewCount,
			CreatedAt:     video.CreatedAt,
			Status:        video.Status,
		})
	}
	return out, nil
}

// VideosByCreator returns the creator's video ids in upload order.
func (e *Engine) VideosByCreator(creator [20]byte) ([]uint64, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	ids, err := e.ledger.state.PaywallCreatorVideos(creator)
	if err != nil {
		return nil, err
	}
	if ids == nil {
		ids = []uint64{}
	}
	return ids, nil
}

// PlatformBalance returns the unwithdrawn platform fees.
func (e *Engine) PlatformBalance() (*big.Int, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	return e.ledger.PlatformBalance()
}

// TotalVideos returns the number of registered videos.
func (e *Engine) TotalVideos() (uint64, error) {
	if err := e.ready(); err != nil {
		return 0, err
	}
	return e.ledger.TotalVideos()
}

// Owner returns the platform owner, if one was configured at genesis.
func (e *Engine) Owner() ([20]byte, bool, error) {
	if err := e.ready(); err != nil {
		return [20]byte{}, false, err
	}
	return e.ledger.Owner()
}

package paywall

// HasAccess reports whether identity may read the content reference of id.
// Creators are implicitly granted. Unknown ids report false.
func (e *Engine) HasAccess(id uint64, identity [20]byte) (bool, error) {
	if e == nil || e.ledger == nil {
		return false, ErrNilState
	}
	video, ok, err := e.ledger.Video(id)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, nil
	}
	if video.Creator == identity {
		return true, nil
	}
	return e.ledger.HasGrant(id, identity)
}

func (e *Engine) requireCreator(id uint64, identity [20]byte) (*Video, error) {
	video, ok, err := e.ledger.Video(id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrVideoNotFound
	}
	if video.Creator != identity {
		return nil, ErrNotAuthorized
	}
	return video, nil
}

func (e *Engine) requireOwner(identity [20]byte) ([20]byte, error) {
	owner, ok, err := e.ledger.Owner()
	if err != nil {
		return [20]byte{}, err
	}
	if !ok || owner != identity {
		return [20]byte{}, ErrNotAuthorized
	}
	return owner, nil
}

package usecase

import (
	"errors"
	"fmt"
)

var (
	ErrCache      = errors.New("torrent cache error")
	ErrStore      = errors.New("object store error")
	ErrRepository = errors.New("repository error")
	ErrFeed       = errors.New("feed error")
)

func wrapCache(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrCache, err)
}

func wrapStore(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrStore, err)
}

func wrapRepo(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrRepository, err)
}

func wrapFeed(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrFeed, err)
}

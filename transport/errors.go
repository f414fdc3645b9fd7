package transport

import "github.com/pkg/errors"

func shortRecvError(self, src, want, got int) error {
	return errors.Errorf("transport: rank %d short recv from %d: want %d got %d", self, src, want, got)
}

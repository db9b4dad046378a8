package main

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/biosecret/go-tasks/apperror"
)

func TestDescribe(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"server message", apperror.New(apperror.KindConflict, "User already exists"), "User already exists"},
		{"internal keeps detail", apperror.Internal("boom", errors.New("disk full")), "internal: boom: disk full"},
		{"wrapped keeps context", fmt.Errorf("task created but reload failed: %w", apperror.New(apperror.KindTimeout, "Request timed out")),
			"task created but reload failed: timeout: Request timed out"},
		{"plain error", errors.New("not logged in"), "not logged in"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, describe(tt.err))
		})
	}
}

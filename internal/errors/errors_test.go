package errors

import (
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"talkback/internal/domain"
)

func TestIsUnwrapsChains(t *testing.T) {
	err := fmt.Errorf("dispatch: %w", NewBusy("transcription"))
	require.True(t, Is(err, domain.ErrorCodeBusy))
	require.False(t, Is(err, domain.ErrorCodeProvider))
	require.False(t, Is(stderrors.New("plain"), domain.ErrorCodeBusy))
}

func TestProviderErrorMessage(t *testing.T) {
	cause := stderrors.New("502 bad gateway")
	err := NewProvider("openai", cause)
	require.Equal(t, "PROVIDER: openai: 502 bad gateway", err.Error())
	require.ErrorIs(t, err, cause)
}

func TestCodeOf(t *testing.T) {
	require.Equal(t, domain.ErrorCodeDuplicate, CodeOf(NewDuplicateLabel("Summarize")))
	require.Equal(t, domain.ErrorCodeInternal, CodeOf(stderrors.New("boom")))
}

func TestSetupRequiredDefaultMessage(t *testing.T) {
	err := NewSetupRequired("")
	require.Equal(t, domain.ErrorCodeSetupRequired, err.Code)
	require.Contains(t, err.Message, "permission")
}

package pathutils_test

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	pathutils "github.com/temirov/pdsmigrate/internal/utils/path"
)

const testHomeDirectoryConstant = "/home/alice"

func TestHomeExpanderExpand(testInstance *testing.T) {
	testCases := []struct {
		name         string
		input        string
		expectedPath string
	}{
		{name: "bare_tilde", input: "~", expectedPath: testHomeDirectoryConstant},
		{name: "tilde_prefix", input: "~/.config/pdsmigrate/config.yaml", expectedPath: filepath.Join(testHomeDirectoryConstant, ".config/pdsmigrate/config.yaml")},
		{name: "absolute_path", input: "/etc/pdsmigrate.yaml", expectedPath: "/etc/pdsmigrate.yaml"},
		{name: "relative_path", input: "config.yaml", expectedPath: "config.yaml"},
		{name: "other_user", input: "~bob/config.yaml", expectedPath: "~bob/config.yaml"},
		{name: "empty", input: "", expectedPath: ""},
	}

	expander := pathutils.NewHomeExpanderWithProvider(func() (string, error) {
		return testHomeDirectoryConstant, nil
	})

	for _, testCase := range testCases {
		testInstance.Run(testCase.name, func(testInstance *testing.T) {
			require.Equal(testInstance, testCase.expectedPath, expander.Expand(testCase.input))
		})
	}
}

func TestHomeExpanderKeepsPathWhenHomeIsUnknown(testInstance *testing.T) {
	providerCalls := 0
	expander := pathutils.NewHomeExpanderWithProvider(func() (string, error) {
		providerCalls++
		return "", errors.New("no home")
	})

	require.Equal(testInstance, "~/config.yaml", expander.Expand("~/config.yaml"))
	require.Equal(testInstance, "~", expander.Expand("~"))
	require.Equal(testInstance, 1, providerCalls)
}

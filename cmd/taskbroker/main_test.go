package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEnvFileFromArgs(t *testing.T) {
	tests := map[string]struct {
		args []string
		exp  string
	}{
		"No flag should return empty.": {
			args: []string{"serve", "--debug"},
		},
		"Flag with equals should be found.": {
			args: []string{"--env-file=/etc/taskbroker.env", "serve"},
			exp:  "/etc/taskbroker.env",
		},
		"Flag with separated value should be found.": {
			args: []string{"serve", "--env-file", ".env"},
			exp:  ".env",
		},
		"Flag without value should return empty.": {
			args: []string{"serve", "--env-file"},
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, test.exp, envFileFromArgs(test.args))
		})
	}
}

// Copyright Antimetal, Inc. All rights reserved.
//
// Use of this source code is governed by a source available license that can be found in the
// LICENSE file or at:
// https://polyformproject.org/wp-content/uploads/2020/06/PolyForm-Shield-1.0.0.txt

package topology

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCPUList(t *testing.T) {
	tests := []struct {
		name      string
		input     string
		expected  []int
		wantError bool
	}{
		{name: "single CPU", input: "5", expected: []int{5}},
		{name: "simple range", input: "0-3", expected: []int{0, 1, 2, 3}},
		{name: "single element range", input: "5-5", expected: []int{5}},
		{name: "mixed", input: "0-3,6,8-10", expected: []int{0, 1, 2, 3, 6, 8, 9, 10}},
		{name: "whitespace around elements", input: " 0 , 2 , 4-6 ", expected: []int{0, 2, 4, 5, 6}},
		{name: "empty string", input: "", wantError: true},
		{name: "trailing comma", input: "0,1,2,", wantError: true},
		{name: "leading comma", input: ",0,1,2", wantError: true},
		{name: "doubled comma", input: "0,,1", wantError: true},
		{name: "inverted range", input: "5-2", wantError: true},
		{name: "too many dashes", input: "0-3-5", wantError: true},
		{name: "non-numeric", input: "abc", wantError: true},
		{name: "non-numeric range bound", input: "0-abc", wantError: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := parseCPUList(tt.input)
			if tt.wantError {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, result)
		})
	}
}

func TestParseCoreType(t *testing.T) {
	tests := []struct {
		input   string
		want    CoreType
		wantErr bool
	}{
		{input: "Core", want: CoreTypePCore},
		{input: "intel_core", want: CoreTypePCore},
		{input: "Atom", want: CoreTypeECore},
		{input: "intel_atom", want: CoreTypeECore},
		{input: "Core\n", want: CoreTypePCore},
		{input: "bogus", wantErr: true},
		{input: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := parseCoreType(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

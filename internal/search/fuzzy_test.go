// SPDX-License-Identifier: AGPL-3.0-or-later

package search

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTokenSetRatioIgnoresWordOrder(t *testing.T) {
	assert.Equal(t, 100, TokenSetRatio("Attack on Titan", "Titan on Attack"))
}

func TestTokenSetRatioPenalizesUnrelatedStrings(t *testing.T) {
	assert.Less(t, TokenSetRatio("Attack on Titan", "Blade Runner 2049"), 50)
}

func TestPartialRatioFindsEmbeddedAlias(t *testing.T) {
	assert.Greater(t, PartialRatio("进击的巨人", "进击的巨人 第二季 [简体中文字幕]"), 85)
}

func TestPartialRatioIdentical(t *testing.T) {
	assert.Equal(t, 100, PartialRatio("Frieren", "Frieren"))
}

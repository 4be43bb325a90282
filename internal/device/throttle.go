// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package device

import (
	"context"

	"golang.org/x/time/rate"
)

// maxThrottleBurst caps a single token reservation so large writes
// consume tokens gradually instead of requesting one huge burst.
// Mirrors _examples/nishisan-dev-n-backup/internal/agent/throttle.go's
// maxBurstSize.
const maxThrottleBurst = 256 * 1024

// ThrottledDevice rate-limits writes to an inner TapeDevice using a
// token bucket. Grounded directly on the teacher's ThrottledWriter,
// generalized from io.Writer to TapeDevice so every positioning
// operation still passes through untouched.
type ThrottledDevice struct {
	TapeDevice
	limiter *rate.Limiter
	ctx     context.Context
}

// NewThrottledDevice wraps inner with a bytesPerSec limit. bytesPerSec
// <= 0 disables throttling and returns inner unwrapped.
func NewThrottledDevice(ctx context.Context, inner TapeDevice, bytesPerSec int64) TapeDevice {
	if bytesPerSec <= 0 {
		return inner
	}
	burst := int(bytesPerSec)
	if burst > maxThrottleBurst {
		burst = maxThrottleBurst
	}
	return &ThrottledDevice{
		TapeDevice: inner,
		limiter:    rate.NewLimiter(rate.Limit(bytesPerSec), burst),
		ctx:        ctx,
	}
}

// Write rate-limits by chunking at the burst size and waiting for
// tokens before each chunk, exactly as the teacher's ThrottledWriter
// does for its single-stream backup pipeline.
func (t *ThrottledDevice) Write(p []byte) (int, error) {
	total := 0
	for len(p) > 0 {
		chunk := len(p)
		if chunk > t.limiter.Burst() {
			chunk = t.limiter.Burst()
		}
		if err := t.limiter.WaitN(t.ctx, chunk); err != nil {
			return total, err
		}
		n, err := t.TapeDevice.Write(p[:chunk])
		total += n
		if err != nil {
			return total, err
		}
		if n == 0 {
			// End-of-media: do not keep looping on a zero-byte write.
			return total, nil
		}
		p = p[n:]
	}
	return total, nil
}

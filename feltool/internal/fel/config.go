// Copyright 2025 The Embedded Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package fel

import "time"

const (
	DefaultTimeout           = time.Second
	DefaultReconnectAttempts = 10
	DefaultReconnectDelay    = 2 * time.Second
	DefaultSettleTime        = 5 * time.Second
	DefaultSettleTick        = 500 * time.Millisecond
	DefaultDRAMInitDelay     = 2 * time.Second

	// DefaultFlashSuffix is appended to the sunxi_flash commands. It makes
	// U-Boot jump back to FEL when the flash operation is done.
	DefaultFlashSuffix = "efex_test"
)

// Config holds the session configuration.
type Config struct {
	VendorID  uint16
	ProductID uint16

	// Per transfer timeouts.
	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	// Reconnect budget after a command that drops the USB connection.
	ReconnectAttempts int
	ReconnectDelay    time.Duration

	// Settle window before the first reconnect attempt. The progress
	// callback is called once per SettleTick.
	SettleTime time.Duration
	SettleTick time.Duration

	// DRAMInitDelay is the time given to fes1 to set up DRAM. There is no
	// ready signal.
	DRAMInitDelay time.Duration

	FlashSuffix string

	// Log receives diagnostic lines (optional).
	Log func(msg string)
}

func defaultConfig() Config {
	return Config{
		VendorID:          VendorID,
		ProductID:         ProductID,
		ReadTimeout:       DefaultTimeout,
		WriteTimeout:      DefaultTimeout,
		ReconnectAttempts: DefaultReconnectAttempts,
		ReconnectDelay:    DefaultReconnectDelay,
		SettleTime:        DefaultSettleTime,
		SettleTick:        DefaultSettleTick,
		DRAMInitDelay:     DefaultDRAMInitDelay,
		FlashSuffix:       DefaultFlashSuffix,
	}
}

// Option is a functional option for New.
type Option func(*Config)

// WithIDs selects the device by its USB vendor and product ID.
func WithIDs(vendor, product uint16) Option {
	return func(c *Config) {
		c.VendorID, c.ProductID = vendor, product
	}
}

// WithTimeout sets both the read and write timeouts of a single transfer.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Config) {
		if timeout > 0 {
			c.ReadTimeout, c.WriteTimeout = timeout, timeout
		}
	}
}

// WithReconnect sets the number of reopen attempts and the delay between
// them. At least one attempt is always made, a negative delay means no
// delay.
func WithReconnect(attempts int, delay time.Duration) Option {
	return func(c *Config) {
		c.ReconnectAttempts = max(attempts, 1)
		c.ReconnectDelay = max(delay, 0)
	}
}

// WithSettle sets the time the device is left alone after a rebooting
// command and the period of progress callbacks during that time. A
// non-positive tick keeps the current one.
func WithSettle(window, tick time.Duration) Option {
	return func(c *Config) {
		c.SettleTime = max(window, 0)
		if tick > 0 {
			c.SettleTick = tick
		}
	}
}

func WithDRAMInitDelay(d time.Duration) Option {
	return func(c *Config) {
		if d >= 0 {
			c.DRAMInitDelay = d
		}
	}
}

func WithFlashSuffix(s string) Option {
	return func(c *Config) {
		c.FlashSuffix = s
	}
}

// WithLog sets the diagnostic line sink.
func WithLog(log func(msg string)) Option {
	return func(c *Config) {
		c.Log = log
	}
}

//go:build linux

// Copyright (c) 2024, The posh Authors
// See LICENSE for licensing information

package interp

import "golang.org/x/sys/unix"

const (
	ioctlGetTermios = unix.TCGETS
	ioctlSetTermios = unix.TCSETSW
)

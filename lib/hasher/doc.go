// Copyright 2026 The Nex Authors
// SPDX-License-Identifier: Apache-2.0

// Package hasher computes multiple digests of a single stream in one
// read pass.
//
// The hash command exists for large files: hashing a 40 GiB image
// with five algorithms should read the disk once, not five times. A
// reader goroutine broadcasts each chunk to one hashing goroutine per
// algorithm, so the digests are computed in parallel while the input
// streams by.
//
// Supported algorithms are the crypto/* standards (md5, sha1, sha224,
// sha256, sha384, sha512) plus BLAKE3 via github.com/zeebo/blake3.
package hasher

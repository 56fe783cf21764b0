// SPDX-License-Identifier: MIT
// Copyright (c) 2026 WoozyMasta
// Source: github.com/woozymasta/asarpatch

package asar

import (
	_ "crypto/sha256" // registers the hash used by go-digest
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/opencontainers/go-digest"
)

// ComputeIntegrity hashes content the way Electron's asar packer does:
// a digest of the whole content plus one digest per block. The final block
// is always emitted, even when empty.
func ComputeIntegrity(content []byte, algorithm string, blockSize int64) (Integrity, error) {
	if algorithm == "" {
		algorithm = IntegrityAlgorithmSHA256
	}
	if !strings.EqualFold(algorithm, IntegrityAlgorithmSHA256) {
		return Integrity{}, fmt.Errorf("%w: %q", ErrUnsupportedIntegrity, algorithm)
	}
	if blockSize <= 0 {
		blockSize = DefaultIntegrityBlock
	}

	blocks := make([]string, 0, int64(len(content))/blockSize+1)
	rest := content
	for int64(len(rest)) >= blockSize {
		blocks = append(blocks, digest.SHA256.FromBytes(rest[:blockSize]).Encoded())
		rest = rest[blockSize:]
	}
	blocks = append(blocks, digest.SHA256.FromBytes(rest).Encoded())

	return Integrity{
		Algorithm: algorithm,
		Hash:      digest.SHA256.FromBytes(content).Encoded(),
		BlockSize: blockSize,
		Blocks:    blocks,
	}, nil
}

// VerifyIntegrity reports whether content matches the recorded digest.
func VerifyIntegrity(content []byte, in Integrity) (bool, error) {
	computed, err := ComputeIntegrity(content, in.Algorithm, in.BlockSize)
	if err != nil {
		return false, err
	}

	if computed.Hash != strings.ToLower(in.Hash) || len(computed.Blocks) != len(in.Blocks) {
		return false, nil
	}

	for i := range computed.Blocks {
		if computed.Blocks[i] != strings.ToLower(in.Blocks[i]) {
			return false, nil
		}
	}

	return true, nil
}

// parseIntegrity converts an integrity header node into Integrity.
func parseIntegrity(path string, node *object) (*Integrity, error) {
	in := &Integrity{}

	if v, ok := node.get(keyAlgorithm); ok {
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("%w: entry %s integrity algorithm is not a string", ErrFormat, path)
		}
		in.Algorithm = s
	}

	if v, ok := node.get(keyHash); ok {
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("%w: entry %s integrity hash is not a string", ErrFormat, path)
		}
		in.Hash = s
	}

	if v, ok := node.get(keyBlockSize); ok {
		n, ok := v.(json.Number)
		if !ok {
			return nil, fmt.Errorf("%w: entry %s integrity blockSize is not a number", ErrFormat, path)
		}

		size, err := strconv.ParseInt(n.String(), 10, 64)
		if err != nil || size < 0 {
			return nil, fmt.Errorf("%w: entry %s integrity blockSize %q", ErrFormat, path, n)
		}
		in.BlockSize = size
	}

	if v, ok := node.get(keyBlocks); ok {
		arr, ok := v.([]any)
		if !ok {
			return nil, fmt.Errorf("%w: entry %s integrity blocks is not an array", ErrFormat, path)
		}

		in.Blocks = make([]string, 0, len(arr))
		for _, item := range arr {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("%w: entry %s integrity block is not a string", ErrFormat, path)
			}
			in.Blocks = append(in.Blocks, s)
		}
	}

	return in, nil
}

// storeIntegrity rewrites an integrity header node in place, keeping key order.
func storeIntegrity(node *object, in Integrity) {
	blocks := make([]any, len(in.Blocks))
	for i := range in.Blocks {
		blocks[i] = in.Blocks[i]
	}

	node.set(keyAlgorithm, in.Algorithm)
	node.set(keyHash, in.Hash)
	node.set(keyBlockSize, json.Number(strconv.FormatInt(in.BlockSize, 10)))
	node.set(keyBlocks, blocks)
}

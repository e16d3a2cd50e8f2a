package storage

import (
	"encoding/binary"
	"io"
	"os"
	"sync"

	"github.com/pkg/errors"
	"github.com/zeebo/blake3"

	"tablekv/internal/types"
)

const (
	walMagic   uint32 = 0x54424b57 // "TBKW"
	walVersion uint16 = 1
	walSumLen         = 8
)

type walHeader struct {
	Magic   uint32
	Version uint16
}

// WAL is an append-only log of mutating commands, kept above the storage
// engine. Each record is [len(4)][blake3-8][wire-encoded CommandRequest];
// a record whose checksum does not match ends replay, so a torn tail write
// cannot poison recovery.
type WAL struct {
	path string
	file *os.File
	mu   sync.Mutex
}

// OpenWAL opens or creates the log at path and validates its header.
func OpenWAL(path string) (*WAL, error) {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return nil, errors.Wrap(err, "open WAL file")
	}

	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, errors.Wrap(err, "stat WAL file")
	}
	if info.Size() == 0 {
		if err := binary.Write(file, binary.BigEndian, walHeader{walMagic, walVersion}); err != nil {
			file.Close()
			return nil, errors.Wrap(err, "write WAL header")
		}
	} else {
		var header walHeader
		if err := binary.Read(file, binary.BigEndian, &header); err != nil {
			file.Close()
			return nil, errors.Wrap(err, "read WAL header")
		}
		if header.Magic != walMagic {
			file.Close()
			return nil, errors.New("invalid WAL magic")
		}
		if header.Version > walVersion {
			file.Close()
			return nil, errors.Errorf("unsupported WAL version %d", header.Version)
		}
	}

	if _, err := file.Seek(0, io.SeekEnd); err != nil {
		file.Close()
		return nil, errors.Wrap(err, "seek WAL end")
	}
	return &WAL{path: path, file: file}, nil
}

func recordSum(payload []byte) [walSumLen]byte {
	sum := blake3.Sum256(payload)
	var out [walSumLen]byte
	copy(out[:], sum[:walSumLen])
	return out
}

// Append logs one command and syncs before returning.
func (w *WAL) Append(req *types.CommandRequest) error {
	payload, err := req.Marshal()
	if err != nil {
		return errors.Wrap(err, "encode WAL record")
	}

	record := make([]byte, 4+walSumLen+len(payload))
	binary.BigEndian.PutUint32(record[:4], uint32(len(payload)))
	sum := recordSum(payload)
	copy(record[4:4+walSumLen], sum[:])
	copy(record[4+walSumLen:], payload)

	w.mu.Lock()
	defer w.mu.Unlock()
	if _, err := w.file.Write(record); err != nil {
		return errors.Wrap(err, "write WAL record")
	}
	return errors.Wrap(w.file.Sync(), "sync WAL")
}

// Replay returns every intact record in order. Replay stops without error at
// the first truncated or corrupt record.
func (w *WAL) Replay() ([]*types.CommandRequest, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if _, err := w.file.Seek(int64(binary.Size(walHeader{})), io.SeekStart); err != nil {
		return nil, errors.Wrap(err, "seek WAL start")
	}

	var requests []*types.CommandRequest
	for {
		var lenBuf [4]byte
		if _, err := io.ReadFull(w.file, lenBuf[:]); err != nil {
			break
		}
		payloadLen := binary.BigEndian.Uint32(lenBuf[:])

		record := make([]byte, walSumLen+int(payloadLen))
		if _, err := io.ReadFull(w.file, record); err != nil {
			break
		}
		payload := record[walSumLen:]
		sum := recordSum(payload)
		if string(sum[:]) != string(record[:walSumLen]) {
			break
		}

		req := &types.CommandRequest{}
		if err := req.Unmarshal(payload); err != nil {
			break
		}
		requests = append(requests, req)
	}

	if _, err := w.file.Seek(0, io.SeekEnd); err != nil {
		return nil, errors.Wrap(err, "seek WAL end")
	}
	return requests, nil
}

// Checkpoint discards all records, keeping only the header.
func (w *WAL) Checkpoint() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	headerLen := int64(binary.Size(walHeader{}))
	if err := w.file.Truncate(headerLen); err != nil {
		return errors.Wrap(err, "truncate WAL")
	}
	if _, err := w.file.Seek(headerLen, io.SeekStart); err != nil {
		return errors.Wrap(err, "seek WAL")
	}
	return errors.Wrap(w.file.Sync(), "sync WAL")
}

func (w *WAL) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return errors.Wrap(w.file.Close(), "close WAL")
}

// Size returns the current file size in bytes.
func (w *WAL) Size() (int64, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	info, err := w.file.Stat()
	if err != nil {
		return 0, errors.Wrap(err, "stat WAL")
	}
	return info.Size(), nil
}

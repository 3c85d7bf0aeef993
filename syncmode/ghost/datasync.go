// Package ghost implements the Ghost and Global Ghost sync modes (C7):
// DISTANT payloads are stale replicas refreshed only by an explicit
// data-sync round, rather than kept authoritative on every access as Hard
// mode does.
package ghost

import (
	"bytes"
	"context"
	"encoding/gob"
	"fmt"

	"github.com/fpmas-go/fpmas/comm"
	"github.com/fpmas-go/fpmas/fpid"
	"github.com/fpmas-go/fpmas/location"
	"github.com/fpmas-go/fpmas/syncmode"
)

func encodeRecords[T any](records []fpid.FullRecord[T]) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(records); err != nil {
		return nil, fmt.Errorf("%w: encode ghost records: %v", fpid.ErrCodecFailure, err)
	}
	return buf.Bytes(), nil
}

func decodeRecords[T any](data []byte) ([]fpid.FullRecord[T], error) {
	var records []fpid.FullRecord[T]
	if len(data) == 0 {
		return nil, nil
	}
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&records); err != nil {
		return nil, fmt.Errorf("%w: decode ghost records: %v", fpid.ErrCodecFailure, err)
	}
	return records, nil
}

// DataSync implements the Ghost data-sync round (spec §4.7):
//  1. build, per owning rank, the set of DISTANT ids held locally;
//  2. all-to-all those requests;
//  3. each rank replies with (id, payload, weight) for the ids it owns;
//  4. replace each replica's payload and weight on receipt.
type DataSync[T any] struct {
	rank  int32
	c     comm.Communicator
	loc   *location.Manager
	port  syncmode.GraphPort[T]
	epoch func() comm.Epoch
}

// NewDataSync returns a Ghost data-sync round-tripper. epoch reports the
// current barrier epoch at call time, so the request and reply exchanges
// tag correctly across successive barriers.
func NewDataSync[T any](rank int32, c comm.Communicator, loc *location.Manager, port syncmode.GraphPort[T], epoch func() comm.Epoch) *DataSync[T] {
	return &DataSync[T]{rank: rank, c: c, loc: loc, port: port, epoch: epoch}
}

// Synchronize refreshes the payloads of ids (or every DISTANT node held
// locally, if ids is nil).
func (d *DataSync[T]) Synchronize(ctx context.Context, ids []fpid.ID) error {
	if ids == nil {
		ids = d.port.DistantIDs()
	}

	requests := make(map[int32][]fpid.ID)
	for _, id := range ids {
		owner, known := d.loc.Location(id)
		if !known {
			continue
		}
		requests[owner] = append(requests[owner], id)
	}

	sends := make(map[int32][]byte, len(requests))
	for owner, want := range requests {
		encoded, err := fpid.EncodeIDs(want)
		if err != nil {
			return err
		}
		sends[owner] = encoded
	}

	tag := comm.Tag{Epoch: d.epoch(), Kind: comm.KindBulk}
	received, err := d.c.AllToAll(ctx, tag, sends)
	if err != nil {
		return fmt.Errorf("ghost: data sync request: %w", err)
	}

	replySends := make(map[int32][]byte, len(received))
	for requester, payload := range received {
		wanted, err := fpid.DecodeIDs(payload)
		if err != nil {
			return err
		}
		var records []fpid.FullRecord[T]
		for _, id := range wanted {
			v, w, ok := d.port.LocalPayload(id)
			if !ok {
				continue
			}
			records = append(records, fpid.FullRecord[T]{ID: id, Payload: v, Weight: w})
		}
		encoded, err := encodeRecords(records)
		if err != nil {
			return err
		}
		replySends[requester] = encoded
	}

	replies, err := d.c.AllToAll(ctx, tag, replySends)
	if err != nil {
		return fmt.Errorf("ghost: data sync reply: %w", err)
	}

	for _, payload := range replies {
		records, err := decodeRecords[T](payload)
		if err != nil {
			return err
		}
		for _, rec := range records {
			d.port.SetDistantPayload(rec.ID, rec.Weight, rec.Payload)
		}
	}
	return nil
}

package domain

import (
	"encoding/binary"
	"encoding/hex"

	"github.com/zeebo/blake3"
)

// Domain separation keys; one per record kind so equal inputs to different
// derivations never collide.
var (
	eventAddressKey  = addressKey("ticket-ledger/event")
	ticketAddressKey = addressKey("ticket-ledger/ticket")
	holderAddressKey = addressKey("ticket-ledger/ticket-holder")
	badgeAddressKey  = addressKey("ticket-ledger/badge")
)

// DeriveEventID addresses an event by (organizer, name).
func DeriveEventID(organizer Identity, name string) string {
	return derive(eventAddressKey, []byte(organizer), []byte(name))
}

// DeriveTicketID addresses a ticket by (event, sequential index).
func DeriveTicketID(eventID string, index uint64) string {
	var idx [8]byte
	binary.LittleEndian.PutUint64(idx[:], index)
	return derive(ticketAddressKey, []byte(eventID), idx[:])
}

// DeriveTicketIDForBuyer addresses a ticket by (event, buyer).
func DeriveTicketIDForBuyer(eventID string, buyer Identity) string {
	return derive(holderAddressKey, []byte(eventID), []byte(buyer))
}

// DeriveBadgeID addresses a badge by (event, recipient), so a second badge for
// the same pair lands on the same id.
func DeriveBadgeID(eventID string, recipient Identity) string {
	return derive(badgeAddressKey, []byte(eventID), []byte(recipient))
}

func derive(key [32]byte, parts ...[]byte) string {
	hasher, err := blake3.NewKeyed(key[:])
	if err != nil {
		panic("domain: BLAKE3 keyed hash initialization failed: " + err.Error())
	}
	var lenBuf [8]byte
	for _, p := range parts {
		// Length-prefix each part so ("ab","c") and ("a","bc") differ.
		binary.LittleEndian.PutUint64(lenBuf[:], uint64(len(p)))
		_, _ = hasher.Write(lenBuf[:])
		_, _ = hasher.Write(p)
	}
	return hex.EncodeToString(hasher.Sum(nil))
}

func addressKey(label string) [32]byte {
	return blake3.Sum256([]byte(label))
}

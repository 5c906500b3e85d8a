// SPDX-FileCopyrightText: 2022 Alvar Penning
//
// SPDX-License-Identifier: GPL-3.0-or-later

package archive

import (
	"bytes"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/xmppkit/mam-go/pkg/mam"
	"github.com/xmppkit/mam-go/pkg/rsm"
	"github.com/xmppkit/mam-go/pkg/stanza"
)

var (
	alice = stanza.MustParseAddress("alice@example.org/home")
	bob   = stanza.MustParseAddress("bob@example.org/work")
	carol = stanza.MustParseAddress("carol@example.net")

	baseTime = time.Date(2022, 1, 1, 12, 0, 0, 0, time.UTC)
)

func openStore(t *testing.T, dir string) *Store {
	store, err := NewStore(dir)
	if err != nil {
		t.Fatal(err)
	}
	return store
}

// fillStore archives ten messages for alice, alternating between bob and carol, one minute apart.
func fillStore(t *testing.T, store *Store) {
	for i := 0; i < 10; i++ {
		with := bob
		if i%2 == 1 {
			with = carol
		}

		msg := stanza.NewMessage(alice, with, fmt.Sprintf("m%d", i))
		fwd := stanza.NewForwarded(baseTime.Add(time.Duration(i)*time.Minute), msg)
		if _, err := store.Push(alice, fmt.Sprintf("id%d", i), fwd); err != nil {
			t.Fatal(err)
		}
	}
}

func itemIds(items []Item) (ids []string) {
	for _, item := range items {
		ids = append(ids, item.Id)
	}
	return
}

func TestStorePushGet(t *testing.T) {
	store := openStore(t, t.TempDir())
	defer store.Close()

	fwd := stanza.NewForwarded(baseTime, stanza.NewMessage(bob, alice, "hello"))
	item, err := store.Push(alice, "", fwd)
	if err != nil {
		t.Fatal(err)
	}
	if item.Id == "" || item.WithBare != "bob@example.org" || item.Owner != "alice@example.org" {
		t.Fatalf("unexpected item %v", item)
	}

	item2, err := store.Get(alice.Bare(), item.Id)
	if err != nil {
		t.Fatal(err)
	}
	if fwd2, err := item2.Forwarded(); err != nil {
		t.Fatal(err)
	} else if fwd2.Message.Body != "hello" || !fwd2.Stamp.Equal(baseTime) {
		t.Fatalf("unexpected message %v", fwd2)
	}

	if _, err := store.Push(alice, item.Id, stanza.NewForwarded(baseTime, stanza.NewMessage(bob, alice, "again"))); err != nil {
		t.Fatal(err)
	}
	if n, err := store.Count(alice); err != nil {
		t.Fatal(err)
	} else if n != 1 {
		t.Fatalf("store has %d items after a duplicate push", n)
	}

	if _, err := store.Get(bob, item.Id); !errors.Is(err, ErrItemNotFound) {
		t.Fatalf("item is visible for another owner: %v", err)
	}
	if _, err := store.Push(alice, "", nil); err == nil {
		t.Fatal("pushing nil succeeded")
	}
}

func TestStorePushConcurrent(t *testing.T) {
	store := openStore(t, t.TempDir())
	defer store.Close()

	var wg sync.WaitGroup
	errs := make(chan error, 8)

	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()

			fwd := stanza.NewForwarded(baseTime, stanza.NewMessage(bob, alice, fmt.Sprintf("m%d", i)))
			if _, err := store.Push(alice, "same", fwd); err != nil {
				errs <- err
			}
		}(i)
	}

	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatal(err)
	}

	if n, err := store.Count(alice); err != nil {
		t.Fatal(err)
	} else if n != 1 {
		t.Fatalf("store has %d items", n)
	}
}

func TestStoreQuery(t *testing.T) {
	store := openStore(t, t.TempDir())
	defer store.Close()

	fillStore(t, store)

	tests := []struct {
		name     string
		filter   mam.Filter
		set      *rsm.Set
		ids      []string
		complete bool
	}{
		{"all", mam.Filter{}, nil,
			[]string{"id0", "id1", "id2", "id3", "id4", "id5", "id6", "id7", "id8", "id9"}, true},
		{"first page", mam.Filter{}, rsm.NewSet(3), []string{"id0", "id1", "id2"}, false},
		{"after", mam.Filter{}, rsm.NewPageSet(3, "id2", rsm.After), []string{"id3", "id4", "id5"}, false},
		{"last page", mam.Filter{}, rsm.NewPageSet(3, "id7", rsm.After), []string{"id8", "id9"}, true},
		{"before", mam.Filter{}, rsm.NewPageSet(3, "id5", rsm.Before), []string{"id2", "id3", "id4"}, false},
		{"before start", mam.Filter{}, rsm.NewPageSet(3, "id2", rsm.Before), []string{"id0", "id1"}, true},
		{"with bare", mam.Filter{With: bob.Bare()}, nil, []string{"id0", "id2", "id4", "id6", "id8"}, true},
		{"with full", mam.Filter{With: bob}, rsm.NewSet(2), []string{"id0", "id2"}, false},
		{"with other resource", mam.Filter{With: stanza.MustParseAddress("bob@example.org/other")}, nil, nil, true},
		{"time range", mam.Filter{Start: baseTime.Add(2 * time.Minute), End: baseTime.Add(4 * time.Minute)}, nil,
			[]string{"id2", "id3", "id4"}, true},
		{"time range with", mam.Filter{Start: baseTime.Add(5 * time.Minute), With: carol}, nil,
			[]string{"id5", "id7", "id9"}, true},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			page, err := store.Query(alice, test.filter, test.set)
			if err != nil {
				t.Fatal(err)
			}

			ids := itemIds(page.Items)
			if fmt.Sprint(ids) != fmt.Sprint(test.ids) {
				t.Fatalf("got %v, expected %v", ids, test.ids)
			}
			if page.Complete != test.complete {
				t.Fatalf("complete is %t", page.Complete)
			}
			if len(ids) > 0 && (string(page.Set.First) != ids[0] || string(page.Set.Last) != ids[len(ids)-1]) {
				t.Fatalf("unexpected response set %v", page.Set)
			}
		})
	}

	// The referenced item does not need to match the filter.
	if page, err := store.Query(alice, mam.Filter{With: bob.Bare()}, rsm.NewPageSet(2, "id1", rsm.After)); err != nil {
		t.Fatal(err)
	} else if ids := fmt.Sprint(itemIds(page.Items)); ids != "[id2 id4]" || page.Complete || page.Set.Count != 5 {
		t.Fatalf("unexpected page %s, complete %t, count %d", ids, page.Complete, page.Set.Count)
	}
	if page, err := store.Query(alice, mam.Filter{With: carol}, rsm.NewPageSet(2, "id8", rsm.Before)); err != nil {
		t.Fatal(err)
	} else if ids := fmt.Sprint(itemIds(page.Items)); ids != "[id5 id7]" || page.Complete {
		t.Fatalf("unexpected page %s, complete %t", ids, page.Complete)
	}

	if _, err := store.Query(alice, mam.Filter{}, rsm.NewPageSet(3, "unknown", rsm.After)); !errors.Is(err, ErrItemNotFound) {
		t.Fatalf("expected ErrItemNotFound, got %v", err)
	}

	if page, err := store.Query(bob, mam.Filter{}, nil); err != nil {
		t.Fatal(err)
	} else if len(page.Items) != 0 || page.Set.Count != 0 {
		t.Fatalf("bob's archive is not empty: %v", itemIds(page.Items))
	}
}

func TestStoreReopen(t *testing.T) {
	dir := t.TempDir()

	store := openStore(t, dir)
	fillStore(t, store)
	if err := store.Close(); err != nil {
		t.Fatal(err)
	}

	store = openStore(t, dir)
	defer store.Close()

	if _, err := store.Push(alice, "id10", stanza.NewForwarded(baseTime, stanza.NewMessage(alice, bob, "m10"))); err != nil {
		t.Fatal(err)
	}

	if last, err := store.Last(alice); err != nil {
		t.Fatal(err)
	} else if last.Id != "id10" || last.Seq != 11 {
		t.Fatalf("unexpected last item %v with sequence number %d", last, last.Seq)
	}

	if _, err := store.Last(bob); !errors.Is(err, ErrItemNotFound) {
		t.Fatalf("expected ErrItemNotFound for an empty archive, got %v", err)
	}
}

func TestStoreExportImport(t *testing.T) {
	src := openStore(t, t.TempDir())
	defer src.Close()
	fillStore(t, src)

	buf := new(bytes.Buffer)
	if n, err := src.Export(alice, buf); err != nil {
		t.Fatal(err)
	} else if n != 10 {
		t.Fatalf("exported %d items", n)
	}

	dst := openStore(t, t.TempDir())
	defer dst.Close()

	if n, err := dst.Import(bytes.NewReader(buf.Bytes())); err != nil {
		t.Fatal(err)
	} else if n != 10 {
		t.Fatalf("imported %d items", n)
	}

	page, err := dst.Query(alice, mam.Filter{With: carol}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if ids := itemIds(page.Items); fmt.Sprint(ids) != "[id1 id3 id5 id7 id9]" {
		t.Fatalf("unexpected imported items %v", ids)
	}

	if _, err := dst.Import(bytes.NewReader([]byte("no xz stream"))); err == nil {
		t.Fatal("importing garbage succeeded")
	}
}

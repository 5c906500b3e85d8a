// SPDX-FileCopyrightText: 2022 Alvar Penning
//
// SPDX-License-Identifier: GPL-3.0-or-later

package stanza

import (
	"bytes"
	"fmt"
	"io"
	"reflect"
	"sync"

	"github.com/dtn7/cboring"
)

// Extension is a namespaced child element of a Stanza, e.g., a forwarded message or an archive query.
type Extension interface {
	// ElementName of this Extension, unique together with its Namespace.
	ElementName() string

	// Namespace of this Extension.
	Namespace() string

	cboring.CborMarshaler
}

type extensionKey struct {
	element   string
	namespace string
}

var (
	extensionMutex   sync.RWMutex
	extensionMapping = make(map[extensionKey]reflect.Type)
)

// RegisterExtension makes an Extension type known to the decoder. The Extension must be passed as a pointer to
// its zero value, e.g., RegisterExtension(&Forwarded{}). Registering the same element and namespace twice
// replaces the former type.
func RegisterExtension(ext Extension) {
	t := reflect.TypeOf(ext)
	if t.Kind() != reflect.Ptr {
		panic(fmt.Sprintf("extension %T must be registered as a pointer", ext))
	}

	extensionMutex.Lock()
	defer extensionMutex.Unlock()

	extensionMapping[extensionKey{ext.ElementName(), ext.Namespace()}] = t.Elem()
}

// RawExtension is an Extension without a registered type. Its body is kept as the encoded CBOR.
type RawExtension struct {
	Element string
	NS      string
	Data    []byte
}

func (re *RawExtension) ElementName() string {
	return re.Element
}

func (re *RawExtension) Namespace() string {
	return re.NS
}

func (re *RawExtension) MarshalCbor(w io.Writer) error {
	_, err := w.Write(re.Data)
	return err
}

func (re *RawExtension) UnmarshalCbor(r io.Reader) (err error) {
	re.Data, err = io.ReadAll(r)
	return
}

// marshalExtension writes an array of the element name, the namespace and the Extension's body as a byte string.
func marshalExtension(ext Extension, w io.Writer) error {
	var buff bytes.Buffer
	if err := cboring.Marshal(ext, &buff); err != nil {
		return fmt.Errorf("extension %s/%s: %w", ext.Namespace(), ext.ElementName(), err)
	}

	if err := cboring.WriteArrayLength(3, w); err != nil {
		return err
	}
	if err := cboring.WriteTextString(ext.ElementName(), w); err != nil {
		return err
	}
	if err := cboring.WriteTextString(ext.Namespace(), w); err != nil {
		return err
	}
	return cboring.WriteByteString(buff.Bytes(), w)
}

// unmarshalExtension reads an Extension written by marshalExtension.
func unmarshalExtension(r io.Reader) (ext Extension, err error) {
	if n, arrErr := cboring.ReadArrayLength(r); arrErr != nil {
		err = arrErr
		return
	} else if n != 3 {
		err = fmt.Errorf("expected extension array of three elements, got %d", n)
		return
	}

	var key extensionKey
	if key.element, err = cboring.ReadTextString(r); err != nil {
		return
	}
	if key.namespace, err = cboring.ReadTextString(r); err != nil {
		return
	}

	data, dataErr := cboring.ReadByteString(r)
	if dataErr != nil {
		err = dataErr
		return
	}

	extensionMutex.RLock()
	t, known := extensionMapping[key]
	extensionMutex.RUnlock()

	if !known {
		ext = &RawExtension{Element: key.element, NS: key.namespace, Data: data}
		return
	}

	ext = reflect.New(t).Interface().(Extension)
	if extErr := cboring.Unmarshal(ext, bytes.NewReader(data)); extErr != nil {
		err = fmt.Errorf("extension %s/%s: %w", key.namespace, key.element, extErr)
		ext = nil
	}
	return
}

// marshalExtensions writes a CBOR array of Extensions.
func marshalExtensions(exts []Extension, w io.Writer) error {
	if err := cboring.WriteArrayLength(uint64(len(exts)), w); err != nil {
		return err
	}
	for _, ext := range exts {
		if err := marshalExtension(ext, w); err != nil {
			return err
		}
	}
	return nil
}

// unmarshalExtensions reads a CBOR array of Extensions.
func unmarshalExtensions(r io.Reader) (exts []Extension, err error) {
	n, err := cboring.ReadArrayLength(r)
	if err != nil {
		return
	}

	for i := uint64(0); i < n; i++ {
		ext, extErr := unmarshalExtension(r)
		if extErr != nil {
			return nil, extErr
		}
		exts = append(exts, ext)
	}
	return
}

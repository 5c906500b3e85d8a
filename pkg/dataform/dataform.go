// SPDX-FileCopyrightText: 2022 Alvar Penning
//
// SPDX-License-Identifier: GPL-3.0-or-later

// Package dataform implements the subset of XEP-0004 Data Forms required to submit typed query parameters.
package dataform

import (
	"fmt"
	"io"

	"github.com/dtn7/cboring"

	"github.com/xmppkit/mam-go/pkg/stanza"
)

const (
	Element   = "x"
	Namespace = "jabber:x:data"

	// FormTypeVar is the hidden field naming the namespace a Form belongs to.
	FormTypeVar = "FORM_TYPE"
)

// FormType of a Form.
type FormType string

const (
	TypeForm   FormType = "form"
	TypeSubmit FormType = "submit"
	TypeCancel FormType = "cancel"
	TypeResult FormType = "result"
)

// FieldType of a Field.
type FieldType string

const (
	FieldHidden     FieldType = "hidden"
	FieldTextSingle FieldType = "text-single"
	FieldJidSingle  FieldType = "jid-single"
)

// Field is a named, typed and possibly multi-valued entry of a Form.
type Field struct {
	Var    string
	Type   FieldType
	Values []string
}

// Value returns the first value or an empty string.
func (f Field) Value() string {
	if len(f.Values) == 0 {
		return ""
	}
	return f.Values[0]
}

// Form is an ordered list of Fields.
type Form struct {
	Type   FormType
	Fields []Field
}

func init() {
	stanza.RegisterExtension(&Form{})
}

// NewForm creates a Form with a hidden FORM_TYPE field as its first Field.
func NewForm(t FormType, formType string) *Form {
	return &Form{
		Type:   t,
		Fields: []Field{{Var: FormTypeVar, Type: FieldHidden, Values: []string{formType}}},
	}
}

// AddField appends a new Field.
func (f *Form) AddField(v string, t FieldType, values ...string) {
	f.Fields = append(f.Fields, Field{Var: v, Type: t, Values: values})
}

// Field by its var name.
func (f *Form) Field(v string) (Field, bool) {
	for _, field := range f.Fields {
		if field.Var == v {
			return field, true
		}
	}
	return Field{}, false
}

// FormType is the value of the FORM_TYPE field, or an empty string.
func (f *Form) FormType() string {
	field, _ := f.Field(FormTypeVar)
	return field.Value()
}

func (_ *Form) ElementName() string {
	return Element
}

func (_ *Form) Namespace() string {
	return Namespace
}

func (f *Form) MarshalCbor(w io.Writer) error {
	if err := cboring.WriteArrayLength(2, w); err != nil {
		return err
	}

	if err := cboring.WriteTextString(string(f.Type), w); err != nil {
		return err
	}

	if err := cboring.WriteArrayLength(uint64(len(f.Fields)), w); err != nil {
		return err
	}

	for _, field := range f.Fields {
		if err := cboring.WriteArrayLength(3, w); err != nil {
			return err
		}
		if err := cboring.WriteTextString(field.Var, w); err != nil {
			return err
		}
		if err := cboring.WriteTextString(string(field.Type), w); err != nil {
			return err
		}
		if err := cboring.WriteArrayLength(uint64(len(field.Values)), w); err != nil {
			return err
		}
		for _, value := range field.Values {
			if err := cboring.WriteTextString(value, w); err != nil {
				return err
			}
		}
	}

	return nil
}

func (f *Form) UnmarshalCbor(r io.Reader) error {
	if n, err := cboring.ReadArrayLength(r); err != nil {
		return err
	} else if n != 2 {
		return fmt.Errorf("expected form array of 2 elements, got %d", n)
	}

	if t, err := cboring.ReadTextString(r); err != nil {
		return err
	} else {
		f.Type = FormType(t)
	}

	n, err := cboring.ReadArrayLength(r)
	if err != nil {
		return err
	}

	f.Fields = make([]Field, n)
	for i := range f.Fields {
		field := &f.Fields[i]

		if m, err := cboring.ReadArrayLength(r); err != nil {
			return err
		} else if m != 3 {
			return fmt.Errorf("expected field array of 3 elements, got %d", m)
		}

		if field.Var, err = cboring.ReadTextString(r); err != nil {
			return err
		}

		if t, err := cboring.ReadTextString(r); err != nil {
			return err
		} else {
			field.Type = FieldType(t)
		}

		values, err := cboring.ReadArrayLength(r)
		if err != nil {
			return err
		}
		for j := uint64(0); j < values; j++ {
			if value, err := cboring.ReadTextString(r); err != nil {
				return err
			} else {
				field.Values = append(field.Values, value)
			}
		}
	}

	return nil
}

// SPDX-FileCopyrightText: 2022 Alvar Penning
//
// SPDX-License-Identifier: GPL-3.0-or-later

package mam

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"

	"github.com/xmppkit/mam-go/pkg/dataform"
	"github.com/xmppkit/mam-go/pkg/rsm"
	"github.com/xmppkit/mam-go/pkg/stanza"
)

// Names of the Filter's form fields.
const (
	fieldStart = "start"
	fieldEnd   = "end"
	fieldWith  = "with"
)

// Filter restricts a query to a time range and a counterpart. Zero values are absent.
type Filter struct {
	Start time.Time
	End   time.Time
	With  stanza.Address
}

// IsZero checks if this Filter has no restrictions at all.
func (f Filter) IsZero() bool {
	return f.Start.IsZero() && f.End.IsZero() && f.With.IsZero()
}

// CheckValid returns an error for contradicting restrictions.
func (f Filter) CheckValid() (errs error) {
	if !f.Start.IsZero() && !f.End.IsZero() && f.End.Before(f.Start) {
		errs = multierror.Append(errs,
			fmt.Errorf("end %s precedes start %s", stanza.FormatTime(f.End), stanza.FormatTime(f.Start)))
	}
	if !f.With.IsZero() {
		if err := f.With.CheckValid(); err != nil {
			errs = multierror.Append(errs, err)
		}
	}
	return
}

// Form for this Filter, only containing the present fields. An unrestricted Filter results in nil.
func (f Filter) Form() *dataform.Form {
	if f.IsZero() {
		return nil
	}

	form := dataform.NewForm(dataform.TypeSubmit, Namespace)
	if !f.Start.IsZero() {
		form.AddField(fieldStart, dataform.FieldTextSingle, stanza.FormatTime(f.Start))
	}
	if !f.End.IsZero() {
		form.AddField(fieldEnd, dataform.FieldTextSingle, stanza.FormatTime(f.End))
	}
	if !f.With.IsZero() {
		form.AddField(fieldWith, dataform.FieldJidSingle, f.With.String())
	}
	return form
}

// FilterFromForm parses a submitted Form back into a Filter. A nil Form is an unrestricted Filter.
func FilterFromForm(form *dataform.Form) (f Filter, err error) {
	if form == nil {
		return
	}

	if formType := form.FormType(); formType != Namespace {
		err = fmt.Errorf("%w: unexpected FORM_TYPE %q", ErrInvalidArgument, formType)
		return
	}

	if field, ok := form.Field(fieldStart); ok {
		if f.Start, err = stanza.ParseTime(field.Value()); err != nil {
			err = invalidArgument(err)
			return
		}
	}
	if field, ok := form.Field(fieldEnd); ok {
		if f.End, err = stanza.ParseTime(field.Value()); err != nil {
			err = invalidArgument(err)
			return
		}
	}
	if field, ok := form.Field(fieldWith); ok {
		if f.With, err = stanza.ParseAddress(field.Value()); err != nil {
			err = invalidArgument(err)
			return
		}
	}

	if checkErr := f.CheckValid(); checkErr != nil {
		err = invalidArgument(checkErr)
	}
	return
}

// Query describes a single, immutable archive query. Each Query has its own unique id, correlating the server's
// responses.
type Query struct {
	id     string
	filter Filter
	page   *rsm.Set
}

// newQueryID generates a fresh, process-unique query id.
func newQueryID() string {
	return uuid.NewString()
}

// ID correlating this Query's results.
func (q Query) ID() string {
	return q.id
}

// Filter of this Query.
func (q Query) Filter() Filter {
	return q.filter
}

// Page request of this Query, or nil. The returned Set is a copy.
func (q Query) Page() *rsm.Set {
	if q.page == nil {
		return nil
	}
	set := *q.page
	return &set
}

// withPage derives a new Query with the same Filter, a fresh id and another page request.
func (q Query) withPage(set *rsm.Set) Query {
	return Query{
		id:     newQueryID(),
		filter: q.filter,
		page:   set,
	}
}

// extension for this Query's IQ.
func (q Query) extension() *QueryExtension {
	return &QueryExtension{
		QueryID: q.id,
		Form:    q.filter.Form(),
		RSM:     q.Page(),
	}
}

// iq to send this Query to the own archive.
func (q Query) iq() *stanza.IQ {
	return stanza.NewIQ(stanza.IQSet, stanza.Address{}, q.extension())
}

func (q Query) String() string {
	return fmt.Sprintf("query(id=%s, start=%v, end=%v, with=%v, page=%v)",
		q.id, q.filter.Start, q.filter.End, q.filter.With, q.page)
}

// QueryBuilder is a simple framework to create a Query based on the builder design pattern.
type QueryBuilder struct {
	err error

	max    int
	hasMax bool
	after  rsm.Token
	filter Filter
}

// Builder creates a new QueryBuilder for an unrestricted query.
func Builder() *QueryBuilder {
	return &QueryBuilder{}
}

// Error which may occurred during building the Query.
func (qb *QueryBuilder) Error() error {
	return qb.err
}

// Max limits the page size. The limit must be positive.
func (qb *QueryBuilder) Max(max int) *QueryBuilder {
	if max <= 0 {
		qb.err = multierror.Append(qb.err, fmt.Errorf("max must be positive, is %d", max))
	}

	qb.max = max
	qb.hasMax = true
	return qb
}

// After starts the query after an archive id, e.g., the last one already known.
func (qb *QueryBuilder) After(token rsm.Token) *QueryBuilder {
	qb.after = token
	return qb
}

// Start restricts the query to messages sent at or after this time.
func (qb *QueryBuilder) Start(t time.Time) *QueryBuilder {
	qb.filter.Start = t
	return qb
}

// End restricts the query to messages sent at or before this time.
func (qb *QueryBuilder) End(t time.Time) *QueryBuilder {
	qb.filter.End = t
	return qb
}

// With restricts the query to messages exchanged with a counterpart, either a stanza.Address or a string.
func (qb *QueryBuilder) With(with interface{}) *QueryBuilder {
	switch with := with.(type) {
	case stanza.Address:
		qb.filter.With = with

	case string:
		if addr, err := stanza.ParseAddress(with); err != nil {
			qb.err = multierror.Append(qb.err, err)
		} else {
			qb.filter.With = addr
		}

	default:
		qb.err = multierror.Append(qb.err, fmt.Errorf("with has unsupported type %T", with))
	}
	return qb
}

// Filter sets all restrictions at once.
func (qb *QueryBuilder) Filter(f Filter) *QueryBuilder {
	qb.filter = f
	return qb
}

// Build creates a new Query with a fresh id. Invalid input results in an ErrInvalidArgument.
func (qb *QueryBuilder) Build() (q Query, err error) {
	errs := qb.err
	if filterErr := qb.filter.CheckValid(); filterErr != nil {
		errs = multierror.Append(errs, filterErr)
	}
	if errs != nil {
		err = invalidArgument(errs)
		return
	}

	q = Query{
		id:     newQueryID(),
		filter: qb.filter,
	}
	if qb.hasMax || !qb.after.IsZero() {
		q.page = rsm.NewPageSet(qb.max, qb.after, rsm.After)
	}
	return
}

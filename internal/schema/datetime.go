// Copyright 2024 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package schema

import (
	"fmt"
	"strings"
)

// DateTimeInfoCA is the name of the custom attribute holding DateTime
// metadata.
const DateTimeInfoCA = "DateTimeInfo"

type DateTimeKind int

const (
	DateTimeKindUnspecified DateTimeKind = iota
	DateTimeKindUtc
	DateTimeKindLocal
)

func (k DateTimeKind) String() string {
	switch k {
	case DateTimeKindUtc:
		return "Utc"
	case DateTimeKindLocal:
		return "Local"
	}
	return "Unspecified"
}

type DateTimeComponent int

const (
	DateTimeComponentDateTime DateTimeComponent = iota
	DateTimeComponentDate
	DateTimeComponentTimeOfDay
)

func (c DateTimeComponent) String() string {
	switch c {
	case DateTimeComponentDate:
		return "Date"
	case DateTimeComponentTimeOfDay:
		return "TimeOfDay"
	}
	return "DateTime"
}

// DateTimeInfo describes how DateTime values of a property are to be
// interpreted. The zero value means unspecified kind, full date and time.
type DateTimeInfo struct {
	Kind      DateTimeKind
	Component DateTimeComponent
}

// DateTimeInfo reads the DateTimeInfo custom attribute of p. Properties that
// are not DateTime typed, or carry no custom attribute, get the zero value.
// An error is returned if the custom attribute holds values that are not
// understood.
func (p *Property) DateTimeInfo() (DateTimeInfo, error) {
	var info DateTimeInfo
	if p.PrimitiveType != PrimitiveDateTime {
		return info, nil
	}
	ca, ok := p.CustomAttribute(DateTimeInfoCA)
	if !ok {
		return info, nil
	}
	if v, ok := ca["DateTimeKind"]; ok {
		s, ok := v.(string)
		if !ok {
			return DateTimeInfo{}, fmt.Errorf("DateTimeKind of %s must be a string, got %T", p.FullName(), v)
		}
		switch strings.ToLower(s) {
		case "unspecified":
			info.Kind = DateTimeKindUnspecified
		case "utc":
			info.Kind = DateTimeKindUtc
		case "local":
			info.Kind = DateTimeKindLocal
		default:
			return DateTimeInfo{}, fmt.Errorf("invalid DateTimeKind %q on %s", s, p.FullName())
		}
	}
	if v, ok := ca["DateTimeComponent"]; ok {
		s, ok := v.(string)
		if !ok {
			return DateTimeInfo{}, fmt.Errorf("DateTimeComponent of %s must be a string, got %T", p.FullName(), v)
		}
		switch strings.ToLower(s) {
		case "datetime":
			info.Component = DateTimeComponentDateTime
		case "date":
			info.Component = DateTimeComponentDate
		case "timeofday":
			info.Component = DateTimeComponentTimeOfDay
		default:
			return DateTimeInfo{}, fmt.Errorf("invalid DateTimeComponent %q on %s", s, p.FullName())
		}
	}
	return info, nil
}

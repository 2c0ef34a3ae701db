// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package model

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// ContractKind tags which variant a Contract holds. Contracts are a
// closed tagged union (Enum | Interface | Model | AbstractBase) rather
// than a base-class hierarchy: callers switch on Kind, they never
// upcast to a shared base (see SPEC_FULL.md §9).
type ContractKind string

const (
	ContractEnum         ContractKind = "enum"
	ContractInterface    ContractKind = "interface"
	ContractModel        ContractKind = "model"
	ContractAbstractBase ContractKind = "abstract_base"
)

// EnumMember is one member of an Enum contract.
type EnumMember struct {
	Name  string `json:"name"`
	Value *int   `json:"value,omitempty"`
}

// Parameter is one ordered parameter of a method signature.
type Parameter struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// MethodSignature is a name, return type, and ordered parameter list.
type MethodSignature struct {
	Name       string      `json:"name"`
	ReturnType string      `json:"return_type"`
	Parameters []Parameter `json:"parameters"`
}

// Render produces the signature text, e.g. "Foo(a string, b int) error".
func (m MethodSignature) Render() string {
	parts := make([]string, len(m.Parameters))
	for i, p := range m.Parameters {
		parts[i] = fmt.Sprintf("%s %s", p.Name, p.Type)
	}
	return fmt.Sprintf("%s(%s) %s", m.Name, strings.Join(parts, ", "), m.ReturnType)
}

// Property is a named, typed member with read/write access flags.
type Property struct {
	Name     string `json:"name"`
	Type     string `json:"type"`
	Readable bool   `json:"readable"`
	Writable bool   `json:"writable"`
}

// GenericParam is a generic type parameter with an optional constraint.
type GenericParam struct {
	Name       string `json:"name"`
	Constraint string `json:"constraint,omitempty"`
}

// InterfaceBody holds the variant-specific fields of an Interface contract.
type InterfaceBody struct {
	Methods         []MethodSignature `json:"methods"`
	Properties      []Property        `json:"properties"`
	GenericParams   []GenericParam    `json:"generic_params,omitempty"`
	BaseInterfaces  []string          `json:"base_interfaces,omitempty"`
}

// ModelBody holds the variant-specific fields of a Model contract.
type ModelBody struct {
	Properties           []Property `json:"properties"`
	IsRecord              bool       `json:"is_record"`
	BaseClass             string     `json:"base_class,omitempty"`
	ImplementedInterfaces []string   `json:"implemented_interfaces,omitempty"`
}

// AbstractBaseBody holds the variant-specific fields of an AbstractBase contract.
type AbstractBaseBody struct {
	AbstractMethods []MethodSignature `json:"abstract_methods"`
	VirtualMethods  []MethodSignature `json:"virtual_methods"`
	IsSealed        bool              `json:"is_sealed"`
}

// Contract is a frozen type-shape later tasks must conform to. Exactly
// one of Enum/Interface/Model/AbstractBase is populated, selected by Kind.
type Contract struct {
	Name         string       `json:"name"`
	Namespace    string       `json:"namespace"`
	Kind         ContractKind `json:"kind"`
	SourceTaskID string       `json:"source_task_id"`
	IsFrozen     bool         `json:"is_frozen"`
	FrozenAt     time.Time    `json:"frozen_at,omitempty"`

	EnumMembers []EnumMember      `json:"enum_members,omitempty"`
	Interface   *InterfaceBody    `json:"interface,omitempty"`
	Model       *ModelBody        `json:"model,omitempty"`
	AbstractBase *AbstractBaseBody `json:"abstract_base,omitempty"`
}

// FullyQualifiedName returns "namespace.name".
func (c *Contract) FullyQualifiedName() string {
	if c.Namespace == "" {
		return c.Name
	}
	return c.Namespace + "." + c.Name
}

// HasEnumMember reports whether name is a declared member of an Enum contract.
func (c *Contract) HasEnumMember(name string) bool {
	if c.Kind != ContractEnum {
		return false
	}
	for _, m := range c.EnumMembers {
		if m.Name == name {
			return true
		}
	}
	return false
}

// Render produces the ground-truth declaration text for this contract,
// dispatching on Kind. The orchestrator treats the result as an opaque
// fragment handed to the merger under a contracts/* path; it never
// interprets the target language itself.
func (c *Contract) Render() string {
	switch c.Kind {
	case ContractEnum:
		return c.renderEnum()
	case ContractInterface:
		return c.renderInterface()
	case ContractModel:
		return c.renderModel()
	case ContractAbstractBase:
		return c.renderAbstractBase()
	default:
		return fmt.Sprintf("// unknown contract kind %q for %s", c.Kind, c.FullyQualifiedName())
	}
}

func (c *Contract) renderEnum() string {
	var b strings.Builder
	fmt.Fprintf(&b, "enum %s {\n", c.Name)
	for i, m := range c.EnumMembers {
		if m.Value != nil {
			fmt.Fprintf(&b, "\t%s = %d", m.Name, *m.Value)
		} else {
			fmt.Fprintf(&b, "\t%s", m.Name)
		}
		if i < len(c.EnumMembers)-1 {
			b.WriteString(",")
		}
		b.WriteString("\n")
	}
	b.WriteString("}\n")
	return b.String()
}

func (c *Contract) renderInterface() string {
	var b strings.Builder
	i := c.Interface
	name := c.Name
	fmt.Fprintf(&b, "interface %s", name)
	if len(i.BaseInterfaces) > 0 {
		fmt.Fprintf(&b, " : %s", strings.Join(i.BaseInterfaces, ", "))
	}
	b.WriteString(" {\n")
	for _, p := range i.Properties {
		fmt.Fprintf(&b, "\t%s %s { get; %s}\n", p.Name, p.Type, writableAccessor(p))
	}
	for _, m := range i.Methods {
		fmt.Fprintf(&b, "\t%s;\n", m.Render())
	}
	b.WriteString("}\n")
	return b.String()
}

func writableAccessor(p Property) string {
	if p.Writable {
		return "set; "
	}
	return ""
}

func (c *Contract) renderModel() string {
	var b strings.Builder
	kind := "class"
	if c.Model.IsRecord {
		kind = "record"
	}
	fmt.Fprintf(&b, "%s %s", kind, c.Name)
	var bases []string
	if c.Model.BaseClass != "" {
		bases = append(bases, c.Model.BaseClass)
	}
	bases = append(bases, c.Model.ImplementedInterfaces...)
	if len(bases) > 0 {
		fmt.Fprintf(&b, " : %s", strings.Join(bases, ", "))
	}
	b.WriteString(" {\n")
	for _, p := range c.Model.Properties {
		set := ""
		if p.Writable {
			set = "set; "
		}
		fmt.Fprintf(&b, "\t%s %s { get; %s}\n", p.Name, p.Type, set)
	}
	b.WriteString("}\n")
	return b.String()
}

func (c *Contract) renderAbstractBase() string {
	var b strings.Builder
	if c.AbstractBase.IsSealed {
		fmt.Fprintf(&b, "sealed class %s {\n", c.Name)
	} else {
		fmt.Fprintf(&b, "abstract class %s {\n", c.Name)
	}
	for _, m := range c.AbstractBase.AbstractMethods {
		fmt.Fprintf(&b, "\tabstract %s;\n", m.Render())
	}
	for _, m := range c.AbstractBase.VirtualMethods {
		fmt.Fprintf(&b, "\tvirtual %s { }\n", m.Render())
	}
	b.WriteString("}\n")
	return b.String()
}

// SortContracts returns contracts ordered by fully-qualified name, for
// deterministic catalog listings and manifest serialization.
func SortContracts(cs []*Contract) []*Contract {
	out := append([]*Contract(nil), cs...)
	sort.Slice(out, func(i, j int) bool {
		return out[i].FullyQualifiedName() < out[j].FullyQualifiedName()
	})
	return out
}

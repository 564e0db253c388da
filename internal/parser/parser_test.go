package parser

import (
	"testing"

	"github.com/cimcp/cimcp/internal/symbols"
)

func expectSymbol(t *testing.T, fr *symbols.FileResult, name string, kind symbols.Kind, exported bool) *symbols.Symbol {
	t.Helper()
	for i := range fr.Symbols {
		s := &fr.Symbols[i]
		if s.Name == name {
			if s.Kind != kind {
				t.Errorf("%s: kind = %s, want %s", name, s.Kind, kind)
			}
			if s.Exported != exported {
				t.Errorf("%s: exported = %v, want %v", name, s.Exported, exported)
			}
			if s.StartByte >= s.EndByte {
				t.Errorf("%s: invalid span [%d, %d)", name, s.StartByte, s.EndByte)
			}
			return s
		}
	}
	t.Errorf("symbol %q not found", name)
	return nil
}

func TestTypeScriptParser(t *testing.T) {
	src := []byte(`import { helper, other as alias } from './util'
import Default from './default'
import * as ns from './ns'

// Greets people.
export function greet(name: string) {
	return helper(name)
}

export class Person extends Base implements Greeter {
	greet() { return "hi" }
}

export interface Greeter {
	greet(): string
}

export type Name = string

const secret = computeSecret()

export const MAX = 10
`)
	fr, err := (&TypeScriptParser{}).Parse("src/a.ts", src)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}

	expectSymbol(t, fr, "greet", symbols.KindFunction, true)
	expectSymbol(t, fr, "Person", symbols.KindClass, true)
	expectSymbol(t, fr, "Greeter", symbols.KindInterface, true)
	expectSymbol(t, fr, "Name", symbols.KindTypeAlias, true)
	expectSymbol(t, fr, "secret", symbols.KindConst, false)
	expectSymbol(t, fr, "MAX", symbols.KindConst, true)

	if s := expectSymbol(t, fr, "greet", symbols.KindFunction, true); s != nil {
		if s.Docstring == "" {
			t.Error("expected docstring on greet")
		}
	}

	wantImports := map[string]string{
		"helper":  "./util",
		"other":   "./util",
		"Default": "./default",
		"ns":      "./ns",
	}
	for _, im := range fr.Imports {
		if src, ok := wantImports[im.Name]; ok && im.Source == src {
			delete(wantImports, im.Name)
		}
	}
	for name := range wantImports {
		t.Errorf("import %q not found", name)
	}
	for _, im := range fr.Imports {
		if im.Name == "other" && im.Alias != "alias" {
			t.Errorf("alias for 'other' = %q", im.Alias)
		}
	}
}

func TestGoParser(t *testing.T) {
	src := []byte(`package sample

import (
	"fmt"
	myio "io"
)

const MaxRetries = 3

// Greeter greets.
type Greeter interface {
	Greet() string
}

type Person struct {
	Name string
}

func NewPerson(name string) *Person {
	return &Person{Name: name}
}

func (p *Person) Greet() string {
	return fmt.Sprintf("hi %s", p.Name)
}

func helper() {}
`)
	fr, err := (&GoParser{}).Parse("sample.go", src)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}

	expectSymbol(t, fr, "MaxRetries", symbols.KindConst, true)
	expectSymbol(t, fr, "Greeter", symbols.KindInterface, true)
	expectSymbol(t, fr, "Person", symbols.KindStruct, true)
	expectSymbol(t, fr, "NewPerson", symbols.KindFunction, true)
	expectSymbol(t, fr, "Greet", symbols.KindMethod, true)
	expectSymbol(t, fr, "helper", symbols.KindFunction, false)

	foundAlias := false
	for _, im := range fr.Imports {
		if im.Source == "io" && im.Alias == "myio" {
			foundAlias = true
		}
	}
	if !foundAlias {
		t.Error("aliased import not found")
	}
}

func TestPythonParser(t *testing.T) {
	src := []byte(`from utils.helpers import clean, fetch as fetch_all
import os

MAX_SIZE = 100

class Engine:
    def start(self):
        return clean()

def run():
    return Engine()

def _private():
    pass
`)
	fr, err := (&PythonParser{}).Parse("app/engine.py", src)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}

	expectSymbol(t, fr, "Engine", symbols.KindClass, true)
	expectSymbol(t, fr, "start", symbols.KindMethod, true)
	expectSymbol(t, fr, "run", symbols.KindFunction, true)
	expectSymbol(t, fr, "_private", symbols.KindFunction, false)
	expectSymbol(t, fr, "MAX_SIZE", symbols.KindConst, true)

	found := false
	for _, im := range fr.Imports {
		if im.Name == "fetch" && im.Alias == "fetch_all" && im.Source == "utils/helpers" {
			found = true
		}
	}
	if !found {
		t.Error("aliased from-import not found")
	}
}

func TestRustParser(t *testing.T) {
	src := []byte(`use crate::store::{Store, Row as StoreRow};
use crate::util::clean;

pub struct Engine {
    store: Store,
}

impl Engine {
    pub fn start(&self) {}
}

pub trait Runner {
    fn run(&self);
}

pub enum Mode { Fast, Slow }

type Alias = Engine;

const LIMIT: usize = 10;

fn private_helper() {}
`)
	fr, err := (&RustParser{}).Parse("src/engine.rs", src)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}

	expectSymbol(t, fr, "Engine", symbols.KindStruct, true)
	expectSymbol(t, fr, "start", symbols.KindFunction, true)
	expectSymbol(t, fr, "Runner", symbols.KindTrait, true)
	expectSymbol(t, fr, "Mode", symbols.KindEnum, true)
	expectSymbol(t, fr, "Alias", symbols.KindTypeAlias, false)
	expectSymbol(t, fr, "LIMIT", symbols.KindConst, false)
	expectSymbol(t, fr, "private_helper", symbols.KindFunction, false)

	found := false
	for _, im := range fr.Imports {
		if im.Name == "Row" && im.Alias == "StoreRow" {
			found = true
		}
	}
	if !found {
		t.Error("grouped use with alias not found")
	}
}

func TestDetectLang(t *testing.T) {
	cases := map[string]Lang{
		"a.ts":     LangTypeScript,
		"a.tsx":    LangTypeScript,
		"a.js":     LangJavaScript,
		"a.go":     LangGo,
		"a.rs":     LangRust,
		"a.py":     LangPython,
		"a.md":     LangUnknown,
		"Makefile": LangUnknown,
	}
	for path, want := range cases {
		if got := DetectLang(path); got != want {
			t.Errorf("DetectLang(%s) = %q, want %q", path, got, want)
		}
	}
}

func TestTodoScan(t *testing.T) {
	src := []byte("// TODO: fix rounding\nfunction f() {}\n// FIXME broken\n")
	fr, err := (&TypeScriptParser{}).Parse("src/t.ts", src)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(fr.Todos) != 2 {
		t.Fatalf("todos = %d, want 2", len(fr.Todos))
	}
	if fr.Todos[0].Marker != "TODO" || fr.Todos[0].Line != 1 {
		t.Errorf("first todo = %+v", fr.Todos[0])
	}
}

package ir

import (
	"bytes"
	"compress/gzip"
	"fmt"
	"io"

	"fortio.org/safecast"
	"github.com/vmihailenco/msgpack/v5"
)

// FormatVersion stamps every object blob. Load rejects any other stamp; no
// cross-version migration is attempted.
const FormatVersion = "1.0.0"

// The persisted form is an entity table plus relations: every variable,
// block, function, event and utility entity gets an index, and instruction
// operands refer to entities by index. The blob is msgpack inside gzip.

type objectHeader struct {
	Version string
}

type objectPayload struct {
	Version  string
	Pragmas  []PragmaEntry
	Utils    []string
	Globals  []globalPayload
	Events   []eventPayload
	Externs  []externPayload
	Funcs    []funcPayload
	Scope    []scopeEntryPayload
	Preamble []insnPayload
	Finished bool
}

type globalPayload struct {
	Type uint8
}

type eventPayload struct {
	Name       string
	Conditions []EventCondition
}

type externPayload struct {
	GlobalName string
	Params     []paramPayload
	Returns    []uint8
}

type paramPayload struct {
	Type uint8
	Mode uint8
}

type scopeEntryPayload struct {
	Name string
	Ref  valueRef
}

type funcPayload struct {
	Name      string
	Params    []paramPayload
	Returns   []uint8
	Extern    bool
	Pure      bool
	Inline    bool
	Finished  bool
	Finalized bool
	Vars      []varPayload
	Blocks    []blockPayload
	Scope     []scopeEntryPayload
	Preamble  []insnPayload
	PostExit  []insnPayload
}

type varPayload struct {
	Type        uint8
	Role        uint8
	Mode        uint8
	HasSlot     bool
	Slot        int32
	EntityLocal bool
	HasProxy    bool
	ProxyOffset int32
	ProxyFrame  int32
}

type blockPayload struct {
	Name       string
	Defined    bool
	IsFunction bool
	Force      bool
	Success    bool
	Super      bool
	IsEntry    bool
	Cleared    bool
	Insns      []insnPayload
}

type insnPayload struct {
	Kind  uint8
	Vals  []valueRef
	Types []uint8
	Mode  uint8
	Name  string
	Aux   string
	Built valueRef
}

type valueRef struct {
	Kind  uint8
	Func  int32 // owning function index for variables and blocks
	Index int32
	Int   int64
	Float float64
}

const (
	refNil uint8 = iota
	refVar
	refGlobal
	refBlock
	refFunc
	refExtern
	refEvent
	refUtil
	refInt
	refFloat
)

// SaveObject wraps a finished unit with the current format version,
// serializes the flattened graph, and compresses it.
func SaveObject(top *TopLevel) ([]byte, error) {
	if !top.Finished() {
		return nil, fmt.Errorf("saving unfinished unit: %w", ErrFunctionState)
	}
	enc := newObjEncoder()
	payload, err := enc.flatten(top)
	if err != nil {
		return nil, err
	}
	raw, err := msgpack.Marshal(payload)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write(raw); err != nil {
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// LoadObject decompresses and decodes an object blob, failing before any
// graph reconstruction when the version stamp differs from FormatVersion.
func LoadObject(data []byte) (*TopLevel, error) {
	zr, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	raw, err := io.ReadAll(zr)
	if err != nil {
		return nil, err
	}
	if err := zr.Close(); err != nil {
		return nil, err
	}

	var hdr objectHeader
	if err := msgpack.Unmarshal(raw, &hdr); err != nil {
		return nil, err
	}
	if hdr.Version != FormatVersion {
		return nil, fmt.Errorf("blob version %q, running %q: %w", hdr.Version, FormatVersion, ErrVersionMismatch)
	}

	var payload objectPayload
	if err := msgpack.Unmarshal(raw, &payload); err != nil {
		return nil, err
	}
	return rebuild(&payload)
}

type objEncoder struct {
	funcIdx   map[*IRFunction]int32
	externIdx map[*ExternFunction]int32
	globalIdx map[*Variable]int32
	eventIdx  map[*EventRef]int32
	utilIdx   map[*UtilEntity]int32
	varIdx    map[*Variable][2]int32
	blockIdx  map[*BasicBlock][2]int32
	funcs     []*IRFunction
}

func newObjEncoder() *objEncoder {
	return &objEncoder{
		funcIdx:   make(map[*IRFunction]int32),
		externIdx: make(map[*ExternFunction]int32),
		globalIdx: make(map[*Variable]int32),
		eventIdx:  make(map[*EventRef]int32),
		utilIdx:   make(map[*UtilEntity]int32),
		varIdx:    make(map[*Variable][2]int32),
		blockIdx:  make(map[*BasicBlock][2]int32),
	}
}

func (e *objEncoder) flatten(top *TopLevel) (*objectPayload, error) {
	payload := &objectPayload{
		Version:  FormatVersion,
		Pragmas:  top.pragmas,
		Finished: top.finished,
	}

	// Pass 1: index every entity and record the scope layouts.
	var indexErr error
	top.scope.Each(func(name string, v Value) {
		if indexErr != nil {
			return
		}
		ref, err := e.indexTopEntity(payload, v)
		if err != nil {
			indexErr = err
			return
		}
		payload.Scope = append(payload.Scope, scopeEntryPayload{Name: name, Ref: ref})
	})
	if indexErr != nil {
		return nil, indexErr
	}
	for fi, fn := range e.funcs {
		if err := e.indexFunction(&payload.Funcs[fi], int32(fi), fn); err != nil {
			return nil, err
		}
	}

	// Pass 2: encode instructions against the finished index.
	var err error
	payload.Preamble, err = e.encodeInsns(top.preamble.insns)
	if err != nil {
		return nil, err
	}
	for fi, fn := range e.funcs {
		fp := &payload.Funcs[fi]
		if fp.Preamble, err = e.encodeInsns(fn.preamble.insns); err != nil {
			return nil, err
		}
		if fp.PostExit, err = e.encodeInsns(fn.postExit); err != nil {
			return nil, err
		}
		blocks := fn.AllBlocks()
		for bi, b := range blocks {
			if fp.Blocks[bi].Insns, err = e.encodeInsns(b.insns); err != nil {
				return nil, err
			}
		}
	}
	return payload, nil
}

func (e *objEncoder) indexTopEntity(payload *objectPayload, v Value) (valueRef, error) {
	switch val := v.(type) {
	case *IRFunction:
		idx := int32(len(e.funcs))
		e.funcIdx[val] = idx
		e.funcs = append(e.funcs, val)
		fp := funcPayload{
			Name:      val.name,
			Extern:    val.isExtern,
			Pure:      val.isPure,
			Inline:    val.isInline,
			Finished:  val.finished,
			Finalized: val.varsFinalized,
		}
		for _, p := range val.params {
			fp.Params = append(fp.Params, paramPayload{Type: uint8(p.Type), Mode: uint8(p.Mode)})
		}
		for _, r := range val.returns {
			fp.Returns = append(fp.Returns, uint8(r))
		}
		payload.Funcs = append(payload.Funcs, fp)
		return valueRef{Kind: refFunc, Index: idx}, nil
	case *ExternFunction:
		idx := int32(len(payload.Externs))
		e.externIdx[val] = idx
		ep := externPayload{GlobalName: val.name}
		for _, p := range val.params {
			ep.Params = append(ep.Params, paramPayload{Type: uint8(p.Type), Mode: uint8(p.Mode)})
		}
		for _, r := range val.returns {
			ep.Returns = append(ep.Returns, uint8(r))
		}
		payload.Externs = append(payload.Externs, ep)
		return valueRef{Kind: refExtern, Index: idx}, nil
	case *Variable:
		idx := int32(len(payload.Globals))
		e.globalIdx[val] = idx
		payload.Globals = append(payload.Globals, globalPayload{Type: uint8(val.Type)})
		return valueRef{Kind: refGlobal, Index: idx}, nil
	case *EventRef:
		idx := int32(len(payload.Events))
		e.eventIdx[val] = idx
		payload.Events = append(payload.Events, eventPayload{Name: val.Name, Conditions: val.Conditions})
		return valueRef{Kind: refEvent, Index: idx}, nil
	case *UtilEntity:
		idx := int32(len(payload.Utils))
		e.utilIdx[val] = idx
		payload.Utils = append(payload.Utils, val.Name)
		return valueRef{Kind: refUtil, Index: idx}, nil
	default:
		return valueRef{}, fmt.Errorf("cannot persist %T in unit scope", v)
	}
}

func (e *objEncoder) indexFunction(fp *funcPayload, fi int32, fn *IRFunction) error {
	var indexErr error
	fn.scope.Each(func(name string, v Value) {
		if indexErr != nil {
			return
		}
		switch val := v.(type) {
		case *Variable:
			idx := int32(len(fp.Vars))
			e.varIdx[val] = [2]int32{fi, idx}
			vp := varPayload{
				Type:        uint8(val.Type),
				Role:        uint8(val.Role),
				Mode:        uint8(val.Mode),
				HasSlot:     val.HasSlot,
				EntityLocal: val.EntityLocal,
			}
			slot, err := safecast.Conv[int32](val.Slot)
			if err != nil {
				indexErr = err
				return
			}
			vp.Slot = slot
			if val.Proxy != nil {
				vp.HasProxy = true
				vp.ProxyOffset = int32(val.Proxy.Offset)
				vp.ProxyFrame = int32(val.Proxy.Frame)
			}
			fp.Vars = append(fp.Vars, vp)
			fp.Scope = append(fp.Scope, scopeEntryPayload{Name: name, Ref: valueRef{Kind: refVar, Func: fi, Index: idx}})
		case *BasicBlock:
			idx := int32(len(fp.Blocks))
			e.blockIdx[val] = [2]int32{fi, idx}
			fp.Blocks = append(fp.Blocks, blockPayload{
				Name:       val.name,
				Defined:    val.Defined,
				IsFunction: val.IsFunction,
				Force:      val.Force,
				Success:    val.NeedsSuccessTracker,
				Super:      val.super,
				IsEntry:    val.isEntry,
				Cleared:    val.cleared,
			})
			fp.Scope = append(fp.Scope, scopeEntryPayload{Name: name, Ref: valueRef{Kind: refBlock, Func: fi, Index: idx}})
		default:
			indexErr = fmt.Errorf("cannot persist %T in function scope", v)
		}
	})
	return indexErr
}

func (e *objEncoder) encodeInsns(insns []*Insn) ([]insnPayload, error) {
	out := make([]insnPayload, 0, len(insns))
	for _, in := range insns {
		ip := insnPayload{
			Kind: uint8(in.Kind),
			Mode: uint8(in.Mode),
			Name: in.Name,
			Aux:  in.Aux,
		}
		for _, v := range in.Vals {
			ref, err := e.encodeValue(v)
			if err != nil {
				return nil, err
			}
			ip.Vals = append(ip.Vals, ref)
		}
		for _, t := range in.Types {
			ip.Types = append(ip.Types, uint8(t))
		}
		if in.built != nil {
			ref, err := e.encodeValue(in.built)
			if err != nil {
				return nil, err
			}
			ip.Built = ref
		}
		out = append(out, ip)
	}
	return out, nil
}

func (e *objEncoder) encodeValue(v Value) (valueRef, error) {
	switch val := v.(type) {
	case nil:
		return valueRef{Kind: refNil}, nil
	case *Variable:
		if idx, ok := e.varIdx[val]; ok {
			return valueRef{Kind: refVar, Func: idx[0], Index: idx[1]}, nil
		}
		if idx, ok := e.globalIdx[val]; ok {
			return valueRef{Kind: refGlobal, Index: idx}, nil
		}
		return valueRef{}, fmt.Errorf("variable not owned by any persisted scope")
	case *BasicBlock:
		idx, ok := e.blockIdx[val]
		if !ok {
			return valueRef{}, fmt.Errorf("block %s not owned by any persisted scope", val.name)
		}
		return valueRef{Kind: refBlock, Func: idx[0], Index: idx[1]}, nil
	case *IRFunction:
		idx, ok := e.funcIdx[val]
		if !ok {
			return valueRef{}, fmt.Errorf("function %s not in unit scope", val.name)
		}
		return valueRef{Kind: refFunc, Index: idx}, nil
	case *ExternFunction:
		idx, ok := e.externIdx[val]
		if !ok {
			return valueRef{}, fmt.Errorf("extern %s not in unit scope", val.name)
		}
		return valueRef{Kind: refExtern, Index: idx}, nil
	case *EventRef:
		idx, ok := e.eventIdx[val]
		if !ok {
			return valueRef{}, fmt.Errorf("event %s not in unit scope", val.Name)
		}
		return valueRef{Kind: refEvent, Index: idx}, nil
	case *UtilEntity:
		idx, ok := e.utilIdx[val]
		if !ok {
			return valueRef{}, fmt.Errorf("util entity %s not in unit scope", val.Name)
		}
		return valueRef{Kind: refUtil, Index: idx}, nil
	case IntLit:
		return valueRef{Kind: refInt, Int: int64(val)}, nil
	case FloatLit:
		return valueRef{Kind: refFloat, Float: float64(val)}, nil
	default:
		return valueRef{}, fmt.Errorf("cannot persist operand %T", v)
	}
}

// objDecoder holds the materialized entity tables during reconstruction.
type objDecoder struct {
	top     *TopLevel
	utils   []*UtilEntity
	globals []*Variable
	events  []*EventRef
	externs []*ExternFunction
	funcs   []*IRFunction
	vars    [][]*Variable
	blocks  [][]*BasicBlock
}

func rebuild(payload *objectPayload) (*TopLevel, error) {
	d := &objDecoder{top: newBareTopLevel()}
	d.top.pragmas = payload.Pragmas
	d.top.finished = payload.Finished

	for _, name := range payload.Utils {
		d.utils = append(d.utils, &UtilEntity{Name: name})
	}
	for _, gp := range payload.Globals {
		d.globals = append(d.globals, &Variable{Type: VarType(gp.Type), Role: RoleGlobal})
	}
	for _, ep := range payload.Events {
		d.events = append(d.events, &EventRef{Name: ep.Name, Conditions: ep.Conditions})
	}
	for _, xp := range payload.Externs {
		d.externs = append(d.externs, NewExternFunction(xp.GlobalName, decodeParams(xp.Params), decodeReturns(xp.Returns)))
	}

	// Functions first without bodies so cross-function references resolve.
	for _, fp := range payload.Funcs {
		fn := &IRFunction{name: fp.Name, top: d.top}
		fn.scope = NewScope(d.top.scope)
		fn.preamble = newPreamble(fn, false)
		fn.params = decodeParams(fp.Params)
		fn.returns = decodeReturns(fp.Returns)
		fn.isExtern = fp.Extern
		fn.isPure = fp.Pure
		fn.isInline = fp.Inline
		fn.finished = fp.Finished
		fn.varsFinalized = fp.Finalized
		d.funcs = append(d.funcs, fn)
	}
	for fi, fp := range payload.Funcs {
		fn := d.funcs[fi]
		var vars []*Variable
		for _, vp := range fp.Vars {
			v := &Variable{
				Type:        VarType(vp.Type),
				Role:        VarRole(vp.Role),
				Mode:        PassMode(vp.Mode),
				HasSlot:     vp.HasSlot,
				Slot:        int(vp.Slot),
				EntityLocal: vp.EntityLocal,
			}
			if vp.HasProxy {
				v.Proxy = &StackSlot{Offset: int(vp.ProxyOffset), Frame: int(vp.ProxyFrame)}
			}
			vars = append(vars, v)
		}
		d.vars = append(d.vars, vars)

		var blocks []*BasicBlock
		for _, bp := range fp.Blocks {
			b := newBasicBlock(bp.Name, fn, bp.Super)
			b.Defined = bp.Defined
			b.IsFunction = bp.IsFunction
			b.Force = bp.Force
			b.NeedsSuccessTracker = bp.Success
			b.isEntry = bp.IsEntry
			b.cleared = bp.Cleared
			if bp.Super {
				if bp.IsEntry {
					fn.entry = b
				} else {
					fn.exit = b
				}
			}
			blocks = append(blocks, b)
		}
		d.blocks = append(d.blocks, blocks)
	}

	// Bind every scope in its recorded order.
	for _, entry := range payload.Scope {
		v, err := d.resolve(entry.Ref)
		if err != nil {
			return nil, err
		}
		d.top.scope.Set(entry.Name, v)
	}
	for fi, fp := range payload.Funcs {
		fn := d.funcs[fi]
		for _, entry := range fp.Scope {
			v, err := d.resolve(entry.Ref)
			if err != nil {
				return nil, err
			}
			fn.scope.Set(entry.Name, v)
		}
	}

	// Instructions last, against the complete entity tables.
	insns, err := d.decodeInsns(payload.Preamble)
	if err != nil {
		return nil, err
	}
	d.top.preamble.appendRaw(insns)
	for fi, fp := range payload.Funcs {
		fn := d.funcs[fi]
		if insns, err = d.decodeInsns(fp.Preamble); err != nil {
			return nil, err
		}
		fn.preamble.appendRaw(insns)
		if fn.postExit, err = d.decodeInsns(fp.PostExit); err != nil {
			return nil, err
		}
		for bi, bp := range fp.Blocks {
			if insns, err = d.decodeInsns(bp.Insns); err != nil {
				return nil, err
			}
			d.blocks[fi][bi].appendRaw(insns)
		}
	}
	return d.top, nil
}

func decodeParams(in []paramPayload) []Param {
	out := make([]Param, len(in))
	for i, p := range in {
		out[i] = Param{Type: VarType(p.Type), Mode: PassMode(p.Mode)}
	}
	return out
}

func decodeReturns(in []uint8) []VarType {
	out := make([]VarType, len(in))
	for i, r := range in {
		out[i] = VarType(r)
	}
	return out
}

func (d *objDecoder) decodeInsns(in []insnPayload) ([]*Insn, error) {
	var out []*Insn
	for _, ip := range in {
		insn := &Insn{
			Kind: InsnKind(ip.Kind),
			Mode: PassMode(ip.Mode),
			Name: ip.Name,
			Aux:  ip.Aux,
		}
		for _, ref := range ip.Vals {
			v, err := d.resolve(ref)
			if err != nil {
				return nil, err
			}
			insn.Vals = append(insn.Vals, v)
		}
		for _, t := range ip.Types {
			insn.Types = append(insn.Types, VarType(t))
		}
		if ip.Built.Kind != refNil {
			v, err := d.resolve(ip.Built)
			if err != nil {
				return nil, err
			}
			insn.built = v
		}
		out = append(out, insn)
	}
	return out, nil
}

func (d *objDecoder) resolve(ref valueRef) (Value, error) {
	switch ref.Kind {
	case refNil:
		return nil, nil
	case refVar:
		if int(ref.Func) >= len(d.vars) || int(ref.Index) >= len(d.vars[ref.Func]) {
			return nil, fmt.Errorf("corrupt variable reference %d/%d", ref.Func, ref.Index)
		}
		return d.vars[ref.Func][ref.Index], nil
	case refGlobal:
		if int(ref.Index) >= len(d.globals) {
			return nil, fmt.Errorf("corrupt global reference %d", ref.Index)
		}
		return d.globals[ref.Index], nil
	case refBlock:
		if int(ref.Func) >= len(d.blocks) || int(ref.Index) >= len(d.blocks[ref.Func]) {
			return nil, fmt.Errorf("corrupt block reference %d/%d", ref.Func, ref.Index)
		}
		return d.blocks[ref.Func][ref.Index], nil
	case refFunc:
		if int(ref.Index) >= len(d.funcs) {
			return nil, fmt.Errorf("corrupt function reference %d", ref.Index)
		}
		return d.funcs[ref.Index], nil
	case refExtern:
		if int(ref.Index) >= len(d.externs) {
			return nil, fmt.Errorf("corrupt extern reference %d", ref.Index)
		}
		return d.externs[ref.Index], nil
	case refEvent:
		if int(ref.Index) >= len(d.events) {
			return nil, fmt.Errorf("corrupt event reference %d", ref.Index)
		}
		return d.events[ref.Index], nil
	case refUtil:
		if int(ref.Index) >= len(d.utils) {
			return nil, fmt.Errorf("corrupt util reference %d", ref.Index)
		}
		return d.utils[ref.Index], nil
	case refInt:
		v, err := safecast.Conv[int32](ref.Int)
		if err != nil {
			return nil, err
		}
		return IntLit(v), nil
	case refFloat:
		return FloatLit(ref.Float), nil
	default:
		return nil, fmt.Errorf("corrupt operand kind %d", ref.Kind)
	}
}

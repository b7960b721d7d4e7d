package sandbox

import (
	"context"

	lua "github.com/yuin/gopher-lua"

	"github.com/BaSui01/sandflow/store"
	"github.com/BaSui01/sandflow/types"
)

// securityMarker prefixes errors raised by the store bindings when a
// runtime-assembled query trips the read-only validation, so the
// executor classifies them as security violations rather than plain
// runtime faults.
const securityMarker = "security violation:"

// ctxOf returns the state's execution context; the executor installs
// it right before running user code.
func ctxOf(L *lua.LState) context.Context {
	if ctx := L.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

// optTableToMap converts an optional table argument into filters.
func optTableToMap(L *lua.LState, idx int) map[string]any {
	v := L.Get(idx)
	t, ok := v.(*lua.LTable)
	if !ok {
		return nil
	}
	m, _ := luaToGo(t).(map[string]any)
	return m
}

// optFields converts an optional array-of-strings argument.
func optFields(L *lua.LState, idx int) []string {
	t, ok := L.Get(idx).(*lua.LTable)
	if !ok {
		return nil
	}
	var fields []string
	t.ForEach(func(_, v lua.LValue) {
		if s, ok := v.(lua.LString); ok {
			fields = append(fields, string(s))
		}
	})
	return fields
}

func raiseStoreErr(L *lua.LState, err error) {
	msg := types.AsError(err).Message
	if types.GetErrorCode(err) == types.ErrSecurityViolation {
		L.RaiseError("%s %s", securityMarker, msg)
		return
	}
	L.RaiseError("store: %s", msg)
}

// StoreBinding exposes the read-only facade to scripts as the `db`
// global. All methods are reads; failures raise Lua errors that the
// executor classifies.
func StoreBinding(ro *store.ReadOnly) ModuleBuilder {
	return func(L *lua.LState) *lua.LTable {
		mod := L.NewTable()

		mod.RawSetString("get", L.NewFunction(func(L *lua.LState) int {
			doc, err := ro.Get(ctxOf(L), L.CheckString(1), optTableToMap(L, 2), optFields(L, 3))
			if err != nil {
				raiseStoreErr(L, err)
			}
			L.Push(goToLua(L, doc))
			return 1
		}))
		mod.RawSetString("get_all", L.NewFunction(func(L *lua.LState) int {
			q := store.Query{
				Collection: L.CheckString(1),
				Filters:    optTableToMap(L, 2),
				Fields:     optFields(L, 3),
				Limit:      L.OptInt(4, 0),
			}
			docs, err := ro.GetAll(ctxOf(L), q)
			if err != nil {
				raiseStoreErr(L, err)
			}
			L.Push(goToLua(L, docs))
			return 1
		}))
		mod.RawSetString("count", L.NewFunction(func(L *lua.LState) int {
			n, err := ro.Count(ctxOf(L), L.CheckString(1), optTableToMap(L, 2))
			if err != nil {
				raiseStoreErr(L, err)
			}
			L.Push(lua.LNumber(n))
			return 1
		}))
		mod.RawSetString("sql", L.NewFunction(func(L *lua.LState) int {
			docs, err := ro.Sql(ctxOf(L), L.CheckString(1), L.OptInt(2, 100))
			if err != nil {
				raiseStoreErr(L, err)
			}
			L.Push(goToLua(L, docs))
			return 1
		}))
		return mod
	}
}

// ToolsBinding exposes the identity-scoped tools facade as the
// `tools` global. Every call returns an envelope table with success,
// data/count or error fields; tools calls never raise.
func ToolsBinding(tools *store.Tools) ModuleBuilder {
	return func(L *lua.LState) *lua.LTable {
		mod := L.NewTable()

		push := func(L *lua.LState, res map[string]any) int {
			L.Push(goToLua(L, normalizeEnvelope(res)))
			return 1
		}

		mod.RawSetString("get_document", L.NewFunction(func(L *lua.LState) int {
			return push(L, tools.GetDocument(ctxOf(L), L.CheckString(1), L.CheckString(2)))
		}))
		mod.RawSetString("get_documents", L.NewFunction(func(L *lua.LState) int {
			return push(L, tools.GetDocuments(ctxOf(L), L.CheckString(1), optTableToMap(L, 2), optFields(L, 3), L.OptInt(4, 0)))
		}))
		mod.RawSetString("search", L.NewFunction(func(L *lua.LState) int {
			return push(L, tools.Search(ctxOf(L), L.CheckString(1), L.CheckString(2), L.OptInt(3, 0)))
		}))
		mod.RawSetString("get_collection_info", L.NewFunction(func(L *lua.LState) int {
			return push(L, tools.GetCollectionInfo(ctxOf(L), L.CheckString(1)))
		}))
		mod.RawSetString("list_reports", L.NewFunction(func(L *lua.LState) int {
			return push(L, tools.ListReports(ctxOf(L)))
		}))
		mod.RawSetString("get_report_info", L.NewFunction(func(L *lua.LState) int {
			return push(L, tools.GetReportInfo(ctxOf(L), L.CheckString(1)))
		}))
		mod.RawSetString("run_report", L.NewFunction(func(L *lua.LState) int {
			return push(L, tools.RunReport(ctxOf(L), L.CheckString(1), optTableToMap(L, 2)))
		}))
		return mod
	}
}

// normalizeEnvelope flattens typed payloads (CollectionInfo,
// ReportInfo) into plain maps so goToLua can represent them.
func normalizeEnvelope(res map[string]any) map[string]any {
	switch data := res["data"].(type) {
	case *store.CollectionInfo:
		res["data"] = collectionInfoMap(data)
	case *store.ReportInfo:
		res["data"] = reportInfoMap(data)
	case []store.ReportInfo:
		rows := make([]map[string]any, len(data))
		for i := range data {
			rows[i] = reportInfoMap(&data[i])
		}
		res["data"] = rows
	case []store.Document:
		rows := make([]map[string]any, len(data))
		for i := range data {
			rows[i] = data[i]
		}
		res["data"] = rows
	}
	return res
}

func collectionInfoMap(info *store.CollectionInfo) map[string]any {
	fields := make([]map[string]any, len(info.Fields))
	for i, f := range info.Fields {
		fields[i] = map[string]any{"name": f.Name, "type": f.Type}
	}
	return map[string]any{"name": info.Name, "count": info.Count, "fields": fields}
}

func reportInfoMap(info *store.ReportInfo) map[string]any {
	m := map[string]any{
		"name":        info.Name,
		"collection":  info.Collection,
		"prepared":    info.Prepared,
		"description": info.Description,
	}
	if len(info.Filters) > 0 {
		filters := make([]any, len(info.Filters))
		for i, f := range info.Filters {
			filters[i] = f
		}
		m["filters"] = filters
	}
	return m
}

package jack_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/n2t-toolchain/hackc/pkg/jack"
)

func TestClassScope(t *testing.T) {
	test := func(st jack.ScopeTable, lookup string, expectedVar jack.Variable, expectedOffset uint16, fail bool) {
		offset, variable, err := st.ResolveVariable(lookup)
		if fail {
			assert.Error(t, err)
			return
		}
		require.NoError(t, err)
		assert.Equal(t, expectedVar, variable)
		assert.Equal(t, expectedOffset, offset)
	}

	t.Run("Without variable shadowing", func(t *testing.T) {
		st := jack.ScopeTable{}
		st.PushClassScope("TestClass") // Push a new class scope before doing anything

		// Register a field variable and a static variable
		require.NoError(t, st.RegisterVariable(jack.Variable{Name: "test_field", Type: jack.Field, DataType: jack.Int}))
		require.NoError(t, st.RegisterVariable(jack.Variable{Name: "test_static", Type: jack.Static, DataType: jack.String}))
		require.NoError(t, st.RegisterVariable(jack.Variable{Name: "test_field_2", Type: jack.Field, DataType: jack.Char}))
		require.NoError(t, st.RegisterVariable(jack.Variable{Name: "test_static_2", Type: jack.Static, DataType: jack.Bool}))

		// All of these variables should be found and resolved correctly
		test(st, "test_field", jack.Variable{Name: "test_field", Type: jack.Field, DataType: jack.Int}, 0, false)
		test(st, "test_static", jack.Variable{Name: "test_static", Type: jack.Static, DataType: jack.String}, 0, false)
		test(st, "test_field_2", jack.Variable{Name: "test_field_2", Type: jack.Field, DataType: jack.Char}, 1, false)
		test(st, "test_static_2", jack.Variable{Name: "test_static_2", Type: jack.Static, DataType: jack.Bool}, 1, false)

		// None of these were declared
		test(st, "random1", jack.Variable{}, 0, true)
		test(st, "random2", jack.Variable{}, 0, true)
		test(st, "random3", jack.Variable{}, 0, true)
		test(st, "random4", jack.Variable{}, 0, true)
	})

	t.Run("Re-declaration within the same scope fails", func(t *testing.T) {
		st := jack.ScopeTable{}
		st.PushClassScope("TestClass")

		require.NoError(t, st.RegisterVariable(jack.Variable{Name: "test_field", Type: jack.Field, DataType: jack.Int}))
		require.NoError(t, st.RegisterVariable(jack.Variable{Name: "test_static", Type: jack.Static, DataType: jack.String}))

		// Re-declaring the same name under the same storage kind is a compile-time failure
		assert.Error(t, st.RegisterVariable(jack.Variable{Name: "test_field", Type: jack.Field, DataType: jack.Char}))
		assert.Error(t, st.RegisterVariable(jack.Variable{Name: "test_static", Type: jack.Static, DataType: jack.Bool}))

		// The original declarations are untouched
		test(st, "test_field", jack.Variable{Name: "test_field", Type: jack.Field, DataType: jack.Int}, 0, false)
		test(st, "test_static", jack.Variable{Name: "test_static", Type: jack.Static, DataType: jack.String}, 0, false)
	})

	t.Run("With scope deallocation", func(t *testing.T) {
		st := jack.ScopeTable{}
		st.PushClassScope("TestClass") // Push a new class scope before doing anything

		// Register a field variable and a static variable
		require.NoError(t, st.RegisterVariable(jack.Variable{Name: "test_field", Type: jack.Field, DataType: jack.Int}))
		require.NoError(t, st.RegisterVariable(jack.Variable{Name: "test_field_2", Type: jack.Field, DataType: jack.Char}))
		require.NoError(t, st.RegisterVariable(jack.Variable{Name: "test_static", Type: jack.Static, DataType: jack.String}))
		require.NoError(t, st.RegisterVariable(jack.Variable{Name: "test_static_2", Type: jack.Static, DataType: jack.Bool}))

		// All of these variables should be found and resolved correctly
		test(st, "test_field", jack.Variable{Name: "test_field", Type: jack.Field, DataType: jack.Int}, 0, false)
		test(st, "test_field_2", jack.Variable{Name: "test_field_2", Type: jack.Field, DataType: jack.Char}, 1, false)
		test(st, "test_static", jack.Variable{Name: "test_static", Type: jack.Static, DataType: jack.String}, 0, false)
		test(st, "test_static_2", jack.Variable{Name: "test_static_2", Type: jack.Static, DataType: jack.Bool}, 1, false)

		st.PopClassScope() // Deallocates the current class scope

		// Fields do not survive class scope deallocation
		test(st, "test_field", jack.Variable{}, 0, true)
		test(st, "test_field_2", jack.Variable{}, 0, true)
		// Statics are reset together with the class scope too (a new class gets a fresh counter)
		test(st, "test_static", jack.Variable{}, 0, true)
		test(st, "test_static_2", jack.Variable{}, 0, true)
	})
}

func TestSubroutineScope(t *testing.T) {
	test := func(st jack.ScopeTable, lookup string, expectedVar jack.Variable, expectedOffset uint16, fail bool) {
		offset, variable, err := st.ResolveVariable(lookup)
		if fail {
			assert.Error(t, err)
			return
		}
		require.NoError(t, err)
		assert.Equal(t, expectedVar, variable)
		assert.Equal(t, expectedOffset, offset)
	}

	t.Run("Without variable shadowing", func(t *testing.T) {
		st := jack.ScopeTable{}
		st.PushClassScope("TestClass")
		st.PushSubRoutineScope("TestSubroutine")

		require.NoError(t, st.RegisterVariable(jack.Variable{Name: "test_local", Type: jack.Local, DataType: jack.Int}))
		require.NoError(t, st.RegisterVariable(jack.Variable{Name: "test_parameter", Type: jack.Parameter, DataType: jack.String}))
		require.NoError(t, st.RegisterVariable(jack.Variable{Name: "test_local_2", Type: jack.Local, DataType: jack.Char}))
		require.NoError(t, st.RegisterVariable(jack.Variable{Name: "test_parameter_2", Type: jack.Parameter, DataType: jack.Bool}))

		test(st, "test_local", jack.Variable{Name: "test_local", Type: jack.Local, DataType: jack.Int}, 0, false)
		test(st, "test_parameter", jack.Variable{Name: "test_parameter", Type: jack.Parameter, DataType: jack.String}, 0, false)
		test(st, "test_local_2", jack.Variable{Name: "test_local_2", Type: jack.Local, DataType: jack.Char}, 1, false)
		test(st, "test_parameter_2", jack.Variable{Name: "test_parameter_2", Type: jack.Parameter, DataType: jack.Bool}, 1, false)

		test(st, "random1", jack.Variable{}, 0, true)
		test(st, "random2", jack.Variable{}, 0, true)
	})

	t.Run("Re-declaration within the same subroutine scope fails", func(t *testing.T) {
		st := jack.ScopeTable{}
		st.PushClassScope("TestClass")
		st.PushSubRoutineScope("TestSubroutine")

		require.NoError(t, st.RegisterVariable(jack.Variable{Name: "test_local", Type: jack.Local, DataType: jack.Int}))
		require.NoError(t, st.RegisterVariable(jack.Variable{Name: "test_parameter", Type: jack.Parameter, DataType: jack.String}))

		assert.Error(t, st.RegisterVariable(jack.Variable{Name: "test_local", Type: jack.Local, DataType: jack.Char}))
		assert.Error(t, st.RegisterVariable(jack.Variable{Name: "test_parameter", Type: jack.Parameter, DataType: jack.Bool}))

		test(st, "test_local", jack.Variable{Name: "test_local", Type: jack.Local, DataType: jack.Int}, 0, false)
		test(st, "test_parameter", jack.Variable{Name: "test_parameter", Type: jack.Parameter, DataType: jack.String}, 0, false)
	})

	t.Run("With scope deallocation", func(t *testing.T) {
		st := jack.ScopeTable{}
		st.PushClassScope("TestClass")
		st.PushSubRoutineScope("TestSubroutine")

		require.NoError(t, st.RegisterVariable(jack.Variable{Name: "test_local", Type: jack.Local, DataType: jack.Int}))
		require.NoError(t, st.RegisterVariable(jack.Variable{Name: "test_parameter", Type: jack.Parameter, DataType: jack.String}))

		test(st, "test_local", jack.Variable{Name: "test_local", Type: jack.Local, DataType: jack.Int}, 0, false)
		test(st, "test_parameter", jack.Variable{Name: "test_parameter", Type: jack.Parameter, DataType: jack.String}, 0, false)

		st.PopSubroutineScope() // Deallocates the current subroutine scope

		test(st, "test_local", jack.Variable{}, 0, true)
		test(st, "test_parameter", jack.Variable{}, 0, true)
	})

	t.Run("Subroutine scope legitimately shadows class scope", func(t *testing.T) {
		st := jack.ScopeTable{}
		st.PushClassScope("TestClass")

		require.NoError(t, st.RegisterVariable(jack.Variable{Name: "test1", Type: jack.Field, DataType: jack.Int}))
		require.NoError(t, st.RegisterVariable(jack.Variable{Name: "test2", Type: jack.Static, DataType: jack.String}))

		st.PushSubRoutineScope("TestSubroutine")

		require.NoError(t, st.RegisterVariable(jack.Variable{Name: "test1", Type: jack.Local, DataType: jack.Bool}))
		require.NoError(t, st.RegisterVariable(jack.Variable{Name: "test2", Type: jack.Parameter, DataType: jack.Char}))

		test(st, "test1", jack.Variable{Name: "test1", Type: jack.Local, DataType: jack.Bool}, 0, false)
		test(st, "test2", jack.Variable{Name: "test2", Type: jack.Parameter, DataType: jack.Char}, 0, false)

		st.PopSubroutineScope()

		test(st, "test1", jack.Variable{Name: "test1", Type: jack.Field, DataType: jack.Int}, 0, false)
		test(st, "test2", jack.Variable{Name: "test2", Type: jack.Static, DataType: jack.String}, 0, false)
	})
}

func TestScopeTracking(t *testing.T) {
	test := func(st jack.ScopeTable, expected string) {
		assert.Equal(t, expected, st.GetScope())
	}

	t.Run("Basic scope tracking checks", func(t *testing.T) {
		st := jack.ScopeTable{}

		st.PushClassScope("TestClass")
		test(st, "TestClass.Global")

		st.PushSubRoutineScope("TestSubroutine")
		test(st, "TestClass.TestSubroutine")

		st.PopSubroutineScope()
		test(st, "TestClass.Global")

		st.PopClassScope()
		test(st, "Global")
	})
}

package layout

import (
	"reflect"
	"testing"
	"unsafe"

	"github.com/stretchr/testify/require"
)

type flatStruct struct {
	A int64
	B [4]uint32
	C float64
}

type nestedStruct struct {
	Inner flatStruct
	Extra bool
}

type pointerStruct struct {
	P *int
}

type interfaceStruct struct {
	V interface{}
}

type sliceStruct struct {
	S []byte
}

type chanStruct struct {
	Ch chan int
}

type funcStruct struct {
	F func()
}

type stringStruct struct {
	Name string
}

type mapStruct struct {
	M map[string]int
}

func typeOf[T any]() reflect.Type {
	return reflect.TypeOf((*T)(nil)).Elem()
}

func TestCheckTrivialAcceptsFlatNumericStruct(t *testing.T) {
	require.NoError(t, CheckTrivial(typeOf[flatStruct]()))
}

func TestCheckTrivialAcceptsNestedTrivialStruct(t *testing.T) {
	require.NoError(t, CheckTrivial(typeOf[nestedStruct]()))
}

func TestCheckTrivialAcceptsPrimitives(t *testing.T) {
	require.NoError(t, CheckTrivial(typeOf[int64]()))
	require.NoError(t, CheckTrivial(typeOf[float64]()))
	require.NoError(t, CheckTrivial(typeOf[bool]()))
	require.NoError(t, CheckTrivial(typeOf[[16]byte]()))
}

func TestCheckTrivialRejectsPointer(t *testing.T) {
	err := CheckTrivial(typeOf[pointerStruct]())
	require.Error(t, err)
	require.Contains(t, err.Error(), "pointer")
	require.Contains(t, err.Error(), "P")
}

func TestCheckTrivialRejectsInterface(t *testing.T) {
	err := CheckTrivial(typeOf[interfaceStruct]())
	require.Error(t, err)
	require.Contains(t, err.Error(), "interface")
}

func TestCheckTrivialRejectsSlice(t *testing.T) {
	err := CheckTrivial(typeOf[sliceStruct]())
	require.Error(t, err)
	require.Contains(t, err.Error(), "slice")
}

func TestCheckTrivialRejectsChannel(t *testing.T) {
	err := CheckTrivial(typeOf[chanStruct]())
	require.Error(t, err)
	require.Contains(t, err.Error(), "channel")
}

func TestCheckTrivialRejectsFunc(t *testing.T) {
	err := CheckTrivial(typeOf[funcStruct]())
	require.Error(t, err)
	require.Contains(t, err.Error(), "function")
}

func TestCheckTrivialRejectsString(t *testing.T) {
	err := CheckTrivial(typeOf[stringStruct]())
	require.Error(t, err)
	require.Contains(t, err.Error(), "string")
}

func TestCheckTrivialRejectsMap(t *testing.T) {
	err := CheckTrivial(typeOf[mapStruct]())
	require.Error(t, err)
	require.Contains(t, err.Error(), "map")
}

func TestCheckTrivialReportsNestedFieldPath(t *testing.T) {
	type deeplyNested struct {
		A nestedStruct
		B pointerStruct
	}
	err := CheckTrivial(typeOf[deeplyNested]())
	require.Error(t, err)
	require.Contains(t, err.Error(), "B.P")
}

func TestCheckTrivialRejectsUnsafePointer(t *testing.T) {
	type withUnsafe struct {
		U unsafe.Pointer
	}
	err := CheckTrivial(typeOf[withUnsafe]())
	require.Error(t, err)
	require.Contains(t, err.Error(), "pointer")
}

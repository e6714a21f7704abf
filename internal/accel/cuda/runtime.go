//go:build cuda

package cuda

/*
#cgo LDFLAGS: -lcudart -lcublas

// Minimal CUDA runtime forward declarations to avoid requiring headers at
// compile time. The linker still needs libcudart and libcublas when
// building with the cuda tag.
typedef void* cudaStream_t;
typedef int cudaError_t;
typedef void (*cudaHostFn_t)(void*);

extern const char* cudaGetErrorString(cudaError_t err);
extern cudaError_t cudaGetDeviceCount(int* count);
extern cudaError_t cudaSetDevice(int device);
extern cudaError_t cudaMemGetInfo(unsigned long long* free, unsigned long long* total);
extern cudaError_t cudaStreamCreate(cudaStream_t* stream);
extern cudaError_t cudaStreamDestroy(cudaStream_t stream);
extern cudaError_t cudaStreamSynchronize(cudaStream_t stream);
extern cudaError_t cudaLaunchHostFunc(cudaStream_t stream, cudaHostFn_t fn, void* userData);
extern cudaError_t cudaMalloc(void** ptr, unsigned long long size);
extern cudaError_t cudaFree(void* ptr);
extern cudaError_t cudaMemcpyAsync(void* dst, const void* src, unsigned long long size, int kind, cudaStream_t stream);
extern cudaError_t cudaMallocHost(void** ptr, unsigned long long size);
extern cudaError_t cudaFreeHost(void* ptr);

#define SLUICE_CUDA_MEMCPY_HOST_TO_DEVICE 1
#define SLUICE_CUDA_MEMCPY_DEVICE_TO_HOST 2

typedef struct cublasContext* cublasHandle_t;
typedef int cublasStatus_t;

extern cublasStatus_t cublasCreate_v2(cublasHandle_t* handle);
extern cublasStatus_t cublasDestroy_v2(cublasHandle_t handle);
extern cublasStatus_t cublasSetStream_v2(cublasHandle_t handle, cudaStream_t stream);
extern cublasStatus_t cublasSgemm_v2(
	cublasHandle_t handle,
	int transa,
	int transb,
	int m,
	int n,
	int k,
	const float* alpha,
	const float* A,
	int lda,
	const float* B,
	int ldb,
	const float* beta,
	float* C,
	int ldc);
extern cublasStatus_t cublasSgemv_v2(
	cublasHandle_t handle,
	int trans,
	int m,
	int n,
	const float* alpha,
	const float* A,
	int lda,
	const float* x,
	int incx,
	const float* beta,
	float* y,
	int incy);

extern void sluiceHostFuncBridge(void*);

static const char* sluiceCudaGetErrorString(cudaError_t err) {
	return cudaGetErrorString(err);
}

static int sluiceCudaGetDeviceCount(int* out) {
	return (int)cudaGetDeviceCount(out);
}

static int sluiceCudaSetDevice(int device) {
	return (int)cudaSetDevice(device);
}

static int sluiceCudaMemGetInfo(unsigned long long* freeBytes, unsigned long long* totalBytes) {
	return (int)cudaMemGetInfo(freeBytes, totalBytes);
}

static int sluiceCudaStreamCreate(cudaStream_t* out) {
	return (int)cudaStreamCreate(out);
}

static int sluiceCudaStreamDestroy(cudaStream_t stream) {
	return (int)cudaStreamDestroy(stream);
}

static int sluiceCudaStreamSynchronize(cudaStream_t stream) {
	return (int)cudaStreamSynchronize(stream);
}

static int sluiceCudaLaunchHostFunc(cudaStream_t stream, void* userData) {
	return (int)cudaLaunchHostFunc(stream, sluiceHostFuncBridge, userData);
}

static int sluiceCudaMalloc(void** ptr, unsigned long long size) {
	return (int)cudaMalloc(ptr, size);
}

static int sluiceCudaFree(void* ptr) {
	return (int)cudaFree(ptr);
}

static int sluiceCudaMemcpyAsync(void* dst, const void* src, unsigned long long size, int kind, cudaStream_t stream) {
	return (int)cudaMemcpyAsync(dst, src, size, kind, stream);
}

static int sluiceCudaMallocHost(void** ptr, unsigned long long size) {
	return (int)cudaMallocHost(ptr, size);
}

static int sluiceCudaFreeHost(void* ptr) {
	return (int)cudaFreeHost(ptr);
}

static int sluiceCublasCreate(cublasHandle_t* out) {
	return (int)cublasCreate_v2(out);
}

static int sluiceCublasDestroy(cublasHandle_t handle) {
	return (int)cublasDestroy_v2(handle);
}

static int sluiceCublasSetStream(cublasHandle_t handle, cudaStream_t stream) {
	return (int)cublasSetStream_v2(handle, stream);
}

static int sluiceCublasSgemm(
	cublasHandle_t handle,
	int transa,
	int transb,
	int m,
	int n,
	int k,
	const float* alpha,
	const float* A,
	int lda,
	const float* B,
	int ldb,
	const float* beta,
	float* C,
	int ldc) {
	return (int)cublasSgemm_v2(handle, transa, transb, m, n, k, alpha, A, lda, B, ldb, beta, C, ldc);
}

static int sluiceCublasSgemv(
	cublasHandle_t handle,
	int trans,
	int m,
	int n,
	const float* alpha,
	const float* A,
	int lda,
	const float* x,
	int incx,
	const float* beta,
	float* y,
	int incy) {
	return (int)cublasSgemv_v2(handle, trans, m, n, alpha, A, lda, x, incx, beta, y, incy);
}
*/
import "C"

import (
	"fmt"
	"runtime/cgo"
	"unsafe"
)

const (
	opN = 0 // CUBLAS_OP_N
	opT = 1 // CUBLAS_OP_T
)

// Go-side names for the raw runtime types. The C pseudo-package is
// per-file, so files without a cgo preamble use these aliases.
type (
	cudaStream   = C.cudaStream_t
	cublasHandle = C.cublasHandle_t
)

func deviceCount() (int, error) {
	var count C.int
	if err := cudaErr(C.sluiceCudaGetDeviceCount(&count)); err != nil {
		return 0, err
	}
	return int(count), nil
}

func setDevice(device int) error {
	return cudaErr(C.sluiceCudaSetDevice(C.int(device)))
}

func memGetInfo() (free, total uint64, err error) {
	var f, t C.ulonglong
	if err := cudaErr(C.sluiceCudaMemGetInfo(&f, &t)); err != nil {
		return 0, 0, err
	}
	return uint64(f), uint64(t), nil
}

func streamCreate() (C.cudaStream_t, error) {
	var s C.cudaStream_t
	if err := cudaErr(C.sluiceCudaStreamCreate(&s)); err != nil {
		return nil, err
	}
	return s, nil
}

func streamDestroy(s C.cudaStream_t) error {
	return cudaErr(C.sluiceCudaStreamDestroy(s))
}

func streamSynchronize(s C.cudaStream_t) error {
	return cudaErr(C.sluiceCudaStreamSynchronize(s))
}

func mallocDevice(bytes int) (unsafe.Pointer, error) {
	if bytes <= 0 {
		return nil, fmt.Errorf("cuda: device alloc size must be > 0")
	}
	var ptr unsafe.Pointer
	if err := cudaErr(C.sluiceCudaMalloc((*unsafe.Pointer)(&ptr), C.ulonglong(bytes))); err != nil {
		return nil, err
	}
	return ptr, nil
}

func freeDevice(ptr unsafe.Pointer) error {
	if ptr == nil {
		return nil
	}
	return cudaErr(C.sluiceCudaFree(ptr))
}

func mallocHostPinned(bytes int) (unsafe.Pointer, error) {
	if bytes <= 0 {
		return nil, fmt.Errorf("cuda: host alloc size must be > 0")
	}
	var ptr unsafe.Pointer
	if err := cudaErr(C.sluiceCudaMallocHost((*unsafe.Pointer)(&ptr), C.ulonglong(bytes))); err != nil {
		return nil, err
	}
	return ptr, nil
}

func freeHostPinned(ptr unsafe.Pointer) error {
	if ptr == nil {
		return nil
	}
	return cudaErr(C.sluiceCudaFreeHost(ptr))
}

func memcpyH2DAsync(dst, src unsafe.Pointer, bytes int, s C.cudaStream_t) error {
	if bytes <= 0 {
		return nil
	}
	return cudaErr(C.sluiceCudaMemcpyAsync(dst, src, C.ulonglong(bytes), C.SLUICE_CUDA_MEMCPY_HOST_TO_DEVICE, s))
}

func memcpyD2HAsync(dst, src unsafe.Pointer, bytes int, s C.cudaStream_t) error {
	if bytes <= 0 {
		return nil
	}
	return cudaErr(C.sluiceCudaMemcpyAsync(dst, src, C.ulonglong(bytes), C.SLUICE_CUDA_MEMCPY_DEVICE_TO_HOST, s))
}

// launchHostFunc enqueues fn on the stream. It runs after all prior work
// on the stream and blocks later work until it returns, which is how the
// driver stages host slices and applies epilogues without breaking
// stream order.
func launchHostFunc(s C.cudaStream_t, fn func()) error {
	h := cgo.NewHandle(fn)
	if err := cudaErr(C.sluiceCudaLaunchHostFunc(s, unsafe.Pointer(uintptr(h)))); err != nil {
		h.Delete()
		return err
	}
	return nil
}

func blasCreate(s C.cudaStream_t) (C.cublasHandle_t, error) {
	var h C.cublasHandle_t
	if err := cublasErr(C.sluiceCublasCreate(&h)); err != nil {
		return nil, err
	}
	if err := cublasErr(C.sluiceCublasSetStream(h, s)); err != nil {
		_ = cublasErr(C.sluiceCublasDestroy(h))
		return nil, err
	}
	return h, nil
}

func blasDestroy(h C.cublasHandle_t) error {
	return cublasErr(C.sluiceCublasDestroy(h))
}

func blasSgemm(h C.cublasHandle_t, transA, transB, m, n, k int, alpha float32, a unsafe.Pointer, lda int, b unsafe.Pointer, ldb int, beta float32, c unsafe.Pointer, ldc int) error {
	return cublasErr(C.sluiceCublasSgemm(
		h,
		C.int(transA), C.int(transB),
		C.int(m), C.int(n), C.int(k),
		(*C.float)(unsafe.Pointer(&alpha)),
		(*C.float)(a), C.int(lda),
		(*C.float)(b), C.int(ldb),
		(*C.float)(unsafe.Pointer(&beta)),
		(*C.float)(c), C.int(ldc),
	))
}

func blasSgemv(h C.cublasHandle_t, trans, m, n int, alpha float32, a unsafe.Pointer, lda int, x unsafe.Pointer, beta float32, y unsafe.Pointer) error {
	return cublasErr(C.sluiceCublasSgemv(
		h,
		C.int(trans),
		C.int(m), C.int(n),
		(*C.float)(unsafe.Pointer(&alpha)),
		(*C.float)(a), C.int(lda),
		(*C.float)(x), C.int(1),
		(*C.float)(unsafe.Pointer(&beta)),
		(*C.float)(y), C.int(1),
	))
}

func cublasErr(code C.int) error {
	if code == 0 {
		return nil
	}
	return fmt.Errorf("cublas error %d", int(code))
}

func cudaErr(code C.int) error {
	if code == 0 {
		return nil
	}
	msg := C.GoString(C.sluiceCudaGetErrorString(C.cudaError_t(code)))
	return fmt.Errorf("cuda runtime error %d: %s", int(code), msg)
}

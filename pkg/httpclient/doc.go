// Package httpclient はサービス間のHTTP通信を行うクライアントを提供する。
//
// gatewayがusers-serviceの内部APIを呼び出す際に使用する。
// 1つのClientが1つのコネクションプールを持ち、呼び出しごとに生成せず共有する。
// 2xx以外のレスポンスは*StatusErrorとして返す。
package httpclient

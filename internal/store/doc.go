/*
包 store 持久化 jsonforge 的生成运行记录。

基于 GORM，支持 sqlite（纯 Go 的 glebarez/sqlite）、postgres 与 mysql
三种驱动。DB 负责连接池、健康检查与带重试的事务；RunStore 负责
运行记录的保存、查询与分页列表。
*/
package store
